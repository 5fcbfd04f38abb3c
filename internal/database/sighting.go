package database

import (
	"database/sql"
	"fmt"
	"time"

	"adsb2mqtt/internal/models"
)

type SightingRepository interface {
	InsertBatch(sightings []*models.Sighting) error
	CountSince(since time.Time) (int, error)
}

type sightingRepository struct {
	db *sql.DB
}

func NewSightingRepository(db *sql.DB) SightingRepository {
	return &sightingRepository{db: db}
}

// InsertBatch inserts published flights in a single transaction.
// A flight published twice for the same observation time is stored once.
func (r *sightingRepository) InsertBatch(sightings []*models.Sighting) error {
	if len(sightings) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO sightings (
		icao, callsign, aircraft_type, altitude, direction,
		latitude, longitude, distance_nm, observed_at, published_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range sightings {
		if _, err := stmt.Exec(
			s.ICAO, s.Callsign, s.AircraftType, s.Altitude, s.Direction,
			s.Latitude, s.Longitude, s.DistanceNM, s.ObservedAt.UTC(), s.PublishedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert sighting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CountSince returns the number of sightings published at or after since
func (r *sightingRepository) CountSince(since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sightings WHERE published_at >= ?", since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sightings: %w", err)
	}
	return n, nil
}
