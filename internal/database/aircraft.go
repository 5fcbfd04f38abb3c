package database

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"adsb2mqtt/internal/models"
)

type AircraftRepository interface {
	InsertBatch(aircraft []*models.Aircraft) error
	IsTablePopulated() (bool, error)
	LoadFromMultipleCSV(csvPaths []string, batchSize int) error
	TypeCode(icao string) (string, error)
	Resolve(icao string) string
}

type aircraftRepository struct {
	db *sql.DB
}

func NewAircraftRepository(db *sql.DB) AircraftRepository {
	return &aircraftRepository{db: db}
}

// InsertBatch inserts one or more aircraft records in a single transaction
func (r *aircraftRepository) InsertBatch(aircraft []*models.Aircraft) error {
	if len(aircraft) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO aircraft (
		icao24, registration, manufacturer_icao, manufacturer_name, model,
		typecode, icao_aircraft_class, operator, operator_callsign, owner
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ac := range aircraft {
		if _, err := stmt.Exec(
			strings.ToLower(ac.ICAO24), ac.Registration, ac.ManufacturerICAO,
			ac.ManufacturerName, ac.Model, ac.TypeCode, ac.ICAOAircraftClass,
			ac.Operator, ac.OperatorCallsign, ac.Owner,
		); err != nil {
			return fmt.Errorf("failed to insert aircraft: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *aircraftRepository) IsTablePopulated() (bool, error) {
	var ignored int
	err := r.db.QueryRow("SELECT 1 FROM aircraft LIMIT 1").Scan(&ignored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check aircraft table: %w", err)
	}
	return true, nil
}

// TypeCode returns the ICAO type designator for an address, or "" if the aircraft is unknown
func (r *aircraftRepository) TypeCode(icao string) (string, error) {
	var typeCode sql.NullString
	err := r.db.QueryRow("SELECT typecode FROM aircraft WHERE icao24 = ?",
		strings.ToLower(strings.TrimSpace(icao))).Scan(&typeCode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up aircraft %s: %w", icao, err)
	}
	return typeCode.String, nil
}

// Resolve is TypeCode with lookup errors logged and treated as unknown
func (r *aircraftRepository) Resolve(icao string) string {
	typeCode, err := r.TypeCode(icao)
	if err != nil {
		slog.Error("Aircraft type lookup failed", "icao", icao, "error", err)
		return ""
	}
	return typeCode
}

// LoadFromMultipleCSV loads aircraft data from OpenSky database CSV files. The dump is
// split into parts in some distributions; every part must share the first file's header.
func (r *aircraftRepository) LoadFromMultipleCSV(csvPaths []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 5000
	}

	var header map[string]int
	batch := make([]*models.Aircraft, 0, batchSize)
	total := 0

	for _, csvPath := range csvPaths {
		err := r.loadCSV(csvPath, &header, func(ac *models.Aircraft) error {
			batch = append(batch, ac)
			if len(batch) < batchSize {
				return nil
			}
			if err := r.InsertBatch(batch); err != nil {
				return fmt.Errorf("failed to insert batch: %w", err)
			}
			total += len(batch)
			batch = batch[:0] // Reset slice but keep capacity
			return nil
		})
		if err != nil {
			return err
		}
	}

	if len(batch) > 0 {
		if err := r.InsertBatch(batch); err != nil {
			return fmt.Errorf("failed to insert final batch: %w", err)
		}
		total += len(batch)
	}

	slog.Info("Loaded aircraft database", "files", len(csvPaths), "aircraft", total)
	return nil
}

func (r *aircraftRepository) loadCSV(csvPath string, header *map[string]int, add func(*models.Aircraft) error) error {
	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true    // The OpenSky dump has stray quotes
	reader.FieldsPerRecord = -1 // and ragged rows

	names, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header from %s: %w", csvPath, err)
	}
	if *header == nil {
		*header = make(map[string]int, len(names))
		for i, h := range names {
			(*header)[strings.ToLower(unquote(h))] = i
		}
	}
	expectedFields := len(*header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record from %s: %w", csvPath, err)
		}
		if len(record) != expectedFields {
			continue
		}

		get := func(name string) string {
			if idx, ok := (*header)[name]; ok && idx < len(record) {
				return unquote(record[idx])
			}
			return ""
		}

		ac := &models.Aircraft{
			ICAO24:            get("icao24"),
			Registration:      get("registration"),
			ManufacturerICAO:  get("manufacturericao"),
			ManufacturerName:  get("manufacturername"),
			Model:             get("model"),
			TypeCode:          get("typecode"),
			ICAOAircraftClass: get("icaoaircraftclass"),
			Operator:          get("operator"),
			OperatorCallsign:  get("operatorcallsign"),
			Owner:             get("owner"),
		}
		if ac.ICAO24 == "" {
			continue
		}
		if err := add(ac); err != nil {
			return err
		}
	}
}

// unquote removes whitespace and the single or double quotes the dump wraps values in
func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "'\"")
}
