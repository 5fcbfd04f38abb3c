package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB owns the SQLite connection shared by the aircraft and sighting repositories
type DB struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := optimizeSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to optimize database: %w", err)
	}

	database := &DB{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// optimizeSQLite tunes SQLite for a small always-on receiver host
func optimizeSQLite(db *sql.DB) error {
	pragmas := []string{
		// WAL lets the type lookups read while history batches are written
		"PRAGMA journal_mode=WAL",
		"PRAGMA cache_size=-16000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// AircraftRepository returns the repository for aircraft type lookups
func (d *DB) AircraftRepository() AircraftRepository {
	return NewAircraftRepository(d.db)
}

// SightingRepository returns the repository for published flight history
func (d *DB) SightingRepository() SightingRepository {
	return NewSightingRepository(d.db)
}

// initSchema creates the database schema if it doesn't exist
func (d *DB) initSchema() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS aircraft (
			icao24 TEXT PRIMARY KEY,
			registration TEXT,
			manufacturer_icao TEXT,
			manufacturer_name TEXT,
			model TEXT,
			typecode TEXT,
			icao_aircraft_class TEXT,
			operator TEXT,
			operator_callsign TEXT,
			owner TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS sightings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icao TEXT NOT NULL,
			callsign TEXT,
			aircraft_type TEXT,
			altitude REAL,
			direction REAL,
			latitude REAL,
			longitude REAL,
			distance_nm REAL,
			observed_at TIMESTAMP NOT NULL,
			published_at TIMESTAMP NOT NULL,
			UNIQUE(icao, observed_at)
		);`,
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sightings_icao ON sightings(icao)`,
		`CREATE INDEX IF NOT EXISTS idx_sightings_published_at ON sightings(published_at)`,
	}

	for _, table := range tables {
		if _, err := d.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, idx := range indexes {
		if _, err := d.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
