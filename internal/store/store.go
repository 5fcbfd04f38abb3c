package store

import (
	"log/slog"
	"time"

	"adsb2mqtt/internal/models"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultTTL is how long a flight may go without updates before it is evicted
const DefaultTTL = 300 * time.Second

// TypeResolver looks up the aircraft type for an ICAO address. An empty result means unknown.
type TypeResolver interface {
	Resolve(icao string) string
}

// FlightStore holds the merged state of every aircraft currently heard, plus the
// ready set of flights that became complete and wait for a publish attempt.
// All operations are atomic per key; no lock is held across a whole drain or sweep.
type FlightStore struct {
	flights  *xsync.MapOf[string, models.Flight]
	ready    *xsync.MapOf[string, models.Flight]
	resolver TypeResolver
	ttl      time.Duration
}

// New creates an empty store. A nil resolver leaves aircraft types unresolved.
func New(resolver TypeResolver, ttl time.Duration) *FlightStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FlightStore{
		flights:  xsync.NewMapOf[string, models.Flight](),
		ready:    xsync.NewMapOf[string, models.Flight](),
		resolver: resolver,
		ttl:      ttl,
	}
}

// Merge overlays rec onto the stored flight for rec.ICAO and returns the merged result.
// When the merged flight is complete it is staged in the ready set unless already staged.
func (s *FlightStore) Merge(rec *models.Record) models.Flight {
	// Resolve outside the map's critical section; the lookup may hit the disk.
	aircraftType := ""
	if prev, ok := s.flights.Load(rec.ICAO); !ok || prev.AircraftType == "" {
		aircraftType = s.resolve(rec.ICAO)
	}

	merged, _ := s.flights.Compute(rec.ICAO, func(old models.Flight, loaded bool) (models.Flight, bool) {
		f := old.Overlay(rec)
		if f.AircraftType == "" {
			f.AircraftType = aircraftType
		}
		return f, false
	})

	if merged.Complete() {
		if _, staged := s.ready.LoadOrStore(merged.ICAO, merged); !staged {
			slog.Debug("Flight ready", "icao", merged.ICAO, "callsign", merged.Callsign())
		}
	}
	return merged
}

func (s *FlightStore) resolve(icao string) string {
	if s.resolver == nil {
		return ""
	}
	return s.resolver.Resolve(icao)
}

// Drain removes and returns every staged flight. Each staged entry is returned by exactly one drain.
func (s *FlightStore) Drain() []models.Flight {
	var keys []string
	s.ready.Range(func(icao string, _ models.Flight) bool {
		keys = append(keys, icao)
		return true
	})

	drained := make([]models.Flight, 0, len(keys))
	for _, icao := range keys {
		if f, ok := s.ready.LoadAndDelete(icao); ok {
			drained = append(drained, f)
		}
	}
	return drained
}

// Evict removes flights last updated more than the TTL before now. Staged flights are kept
// regardless of age. It returns the number of flights removed.
func (s *FlightStore) Evict(now time.Time) int {
	var stale []string
	s.flights.Range(func(icao string, f models.Flight) bool {
		if _, staged := s.ready.Load(icao); staged {
			return true
		}
		if now.Sub(f.LogDateTime) > s.ttl {
			stale = append(stale, icao)
		}
		return true
	})

	evicted := 0
	for _, icao := range stale {
		removed := false
		s.flights.Compute(icao, func(f models.Flight, loaded bool) (models.Flight, bool) {
			if !loaded {
				return f, true
			}
			if _, staged := s.ready.Load(icao); staged || now.Sub(f.LogDateTime) <= s.ttl {
				return f, false
			}
			removed = true
			return f, true
		})
		if !removed {
			slog.Debug("Skipped eviction, flight changed concurrently", "icao", icao)
			continue
		}
		evicted++
	}
	return evicted
}

// Get returns the stored flight for icao
func (s *FlightStore) Get(icao string) (models.Flight, bool) {
	return s.flights.Load(icao)
}

// Staged returns the ready snapshot for icao
func (s *FlightStore) Staged(icao string) (models.Flight, bool) {
	return s.ready.Load(icao)
}

// Len returns the number of tracked flights
func (s *FlightStore) Len() int {
	return s.flights.Size()
}

// ReadyLen returns the number of flights waiting to be drained
func (s *FlightStore) ReadyLen() int {
	return s.ready.Size()
}
