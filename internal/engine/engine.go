package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"adsb2mqtt/internal/geo"
	"adsb2mqtt/internal/models"
	"adsb2mqtt/internal/store"

	"golang.org/x/time/rate"
)

const (
	readBufferSize = 1024
	// BaseStation lines are under 200 bytes; anything past this has lost its newline
	maxLineLength = 4096
)

// ErrSourceExhausted is returned by Ingest when the byte stream delivers no more data
var ErrSourceExhausted = errors.New("byte stream exhausted")

// Sink receives flights that are complete and inside the configured range
type Sink interface {
	Publish(ctx context.Context, flight models.Flight, distanceNM float64) error
}

// Config holds the engine's collaborators
type Config struct {
	Store    *store.FlightStore
	Filter   *geo.RangeFilter
	Sink     Sink
	Location *time.Location   // Zone of the feed's timestamps; nil means local time
	Clock    func() time.Time // Source of "now" for eviction; nil means time.Now

	// SinkReady reports whether the sink can take publishes right now; nil means always.
	// While it is false ready flights stay staged.
	SinkReady func() bool
}

// Engine turns BaseStation records into merged flights and hands ready, in-range
// flights to its sink. Ingest, PublishReady and Evict may run concurrently.
type Engine struct {
	store    *store.FlightStore
	filter   *geo.RangeFilter
	sink     Sink
	location *time.Location
	clock    func() time.Time
	ready    func() bool

	// Malformed lines can arrive in bursts; only some are worth a warning
	warnLimiter *rate.Limiter
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("flight store is required")
	}
	if cfg.Filter == nil {
		return nil, fmt.Errorf("range filter is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("publish sink is required")
	}

	e := &Engine{
		store:       cfg.Store,
		filter:      cfg.Filter,
		sink:        cfg.Sink,
		location:    cfg.Location,
		clock:       cfg.Clock,
		ready:       cfg.SinkReady,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	if e.location == nil {
		e.location = time.Local
	}
	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}
	if e.ready == nil {
		e.ready = func() bool { return true }
	}
	return e, nil
}

// HandleLine parses one feed line and merges it into the store
func (e *Engine) HandleLine(line string) error {
	rec, err := models.ParseRecordInLocation(line, e.location)
	if err != nil {
		if e.warnLimiter.Allow() {
			slog.Warn("Discarding record", "record", line, "error", err)
		} else {
			slog.Debug("Discarding record", "record", line, "error", err)
		}
		return err
	}

	flight := e.store.Merge(rec)
	slog.Debug("Merged record",
		"icao", flight.ICAO,
		"message_type", rec.MessageType,
		"transmission_type", rec.TransmissionType,
		"complete", flight.Complete(),
	)
	return nil
}

// Ingest reads newline-delimited records from r until the stream ends, a read fails or
// ctx is cancelled. It returns ErrSourceExhausted when the stream ends; the caller owns
// reconnecting.
func (e *Engine) Ingest(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readBufferSize)
	var pending []byte
	overflow := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if overflow {
				// Still inside an oversized line; resume after its newline
				idx := bytes.IndexByte(chunk, '\n')
				if idx < 0 {
					chunk = nil
				} else {
					chunk, overflow = chunk[idx+1:], false
				}
			}
			pending = append(pending, chunk...)
			pending = e.handleLines(pending)
			if len(pending) > maxLineLength {
				slog.Warn("Discarding oversized record", "bytes", len(pending), "limit", maxLineLength)
				pending, overflow = nil, true
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrSourceExhausted
			}
			return fmt.Errorf("failed to read record stream: %w", err)
		}
		if n == 0 {
			return ErrSourceExhausted
		}
	}
}

// handleLines consumes every complete line in data and returns the unterminated remainder
func (e *Engine) handleLines(data []byte) []byte {
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimRight(string(data[:idx]), "\r"); line != "" {
			_ = e.HandleLine(line)
		}
		data = data[idx+1:]
	}
	// Move the remainder to the front so the buffer does not grow without bound
	return append(data[:0:0], data...)
}

// PublishReady drains the ready set and publishes every flight inside the range.
// It returns the number of flights handed to the sink successfully. Nothing is drained
// while the sink is not ready; if it goes down mid-drain the rest of the batch is dropped.
func (e *Engine) PublishReady(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	if !e.ready() {
		slog.Debug("Publish sink not ready, holding flights", "staged", e.store.ReadyLen())
		return 0
	}

	published, dropped := 0, 0
	for _, flight := range e.store.Drain() {
		if dropped > 0 || !e.ready() {
			dropped++
			continue
		}

		lat, err := strconv.ParseFloat(flight.Latitude, 64)
		if err != nil {
			slog.Warn("Dropping flight with bad latitude", "icao", flight.ICAO, "latitude", flight.Latitude)
			continue
		}
		lon, err := strconv.ParseFloat(flight.Longitude, 64)
		if err != nil {
			slog.Warn("Dropping flight with bad longitude", "icao", flight.ICAO, "longitude", flight.Longitude)
			continue
		}

		nm := e.filter.Distance(lat, lon)
		if !e.filter.Eligible(nm) {
			slog.Debug("Flight out of range", "icao", flight.ICAO, "nm", nm)
			continue
		}

		if err := e.sink.Publish(ctx, flight, nm); err != nil {
			slog.Error("Failed to publish flight", "icao", flight.ICAO, "error", err)
			continue
		}
		published++
		slog.Info("Published flight",
			"icao", flight.ICAO,
			"callsign", flight.Callsign(),
			"type", flight.AircraftType,
			"nm", nm,
		)
	}
	if dropped > 0 {
		slog.Warn("Publish sink went down, dropped rest of batch", "dropped", dropped)
	}
	return published
}

// Evict drops stale flights from the store and returns how many were removed
func (e *Engine) Evict(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	evicted := e.store.Evict(e.clock())
	slog.Debug("Evicted stale flights", "evicted", evicted, "tracked", e.store.Len())
	return evicted
}
