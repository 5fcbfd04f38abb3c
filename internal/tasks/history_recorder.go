package tasks

import (
	"context"
	"log/slog"
	"time"

	"adsb2mqtt/internal/database"
	"adsb2mqtt/internal/engine"
	"adsb2mqtt/internal/models"
)

// HistoryRecorder wraps a publish sink and records every successful publish in the
// sightings table. Writes are batched: a batch is committed when it reaches batchSize
// or flushInterval has passed.
type HistoryRecorder struct {
	next          engine.Sink
	repo          database.SightingRepository
	sightings     chan *models.Sighting
	batchSize     int           // maximum number of sightings in a batch before committing to database
	flushInterval time.Duration // time to flush batch even if not full
	now           func() time.Time
}

// Default batch size is 100 sightings and flush interval is 5 seconds
func NewHistoryRecorder(next engine.Sink, repo database.SightingRepository) *HistoryRecorder {
	return NewHistoryRecorderWithConfig(next, repo, 100, 5*time.Second)
}

// NewHistoryRecorderWithConfig creates a recorder with custom batch settings
func NewHistoryRecorderWithConfig(next engine.Sink, repo database.SightingRepository, batchSize int, flushInterval time.Duration) *HistoryRecorder {
	return &HistoryRecorder{
		next:          next,
		repo:          repo,
		sightings:     make(chan *models.Sighting, 1000),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Publish forwards to the wrapped sink and queues a history row when it succeeds.
// A full queue drops the row rather than stalling the publish cycle.
func (h *HistoryRecorder) Publish(ctx context.Context, flight models.Flight, distanceNM float64) error {
	if err := h.next.Publish(ctx, flight, distanceNM); err != nil {
		return err
	}

	payload, err := models.NewFlightPayload(flight, distanceNM)
	if err != nil {
		slog.Debug("Not recording sighting", "icao", flight.ICAO, "error", err)
		return nil
	}

	select {
	case h.sightings <- models.NewSighting(payload, flight.LogDateTime, h.now()):
	default:
		slog.Warn("History queue full, dropping sighting", "icao", flight.ICAO)
	}
	return nil
}

// Start collects queued sightings and writes them in batches until ctx is cancelled.
// The pending batch is flushed before returning.
func (h *HistoryRecorder) Start(ctx context.Context) error {
	batch := make([]*models.Sighting, 0, h.batchSize)

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := h.repo.InsertBatch(batch); err != nil {
			slog.Error("Error inserting batch of sightings", "batch_size", len(batch), "error", err)
		} else {
			slog.Debug("Inserted batch of sightings", "batch_size", len(batch))
		}
		batch = batch[:0] // Reset slice but keep capacity
	}

	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case s := <-h.sightings:
					batch = append(batch, s)
				default:
					break drain
				}
			}
			flushBatch()
			return ctx.Err()

		case <-ticker.C:
			flushBatch()

		case s := <-h.sightings:
			batch = append(batch, s)
			if len(batch) >= h.batchSize {
				flushBatch()
			}
		}
	}
}
