package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BaseStation (SBS-1) field positions, as emitted by dump1090 on port 30003
const (
	FieldMessageType      = 0  // MSG, SEL, ID, AIR, STA, CLK
	FieldTransmissionType = 1  // 1-8 for MSG records
	FieldICAO             = 4  // Hex aircraft address
	FieldDateGenerated    = 6  // yyyy/mm/dd
	FieldTimeGenerated    = 7  // hh:mm:ss.sss
	FieldCallsign         = 10 // Flight ident, space padded
	FieldAltitude         = 11 // Mode C altitude in feet
	FieldTrack            = 13 // Track over ground in degrees
	FieldLatitude         = 14
	FieldLongitude        = 15

	// MinRecordFields is the shortest line accepted as a record
	MinRecordFields = 5
)

// ErrInvalidRecord is returned for lines that cannot be turned into a Record
var ErrInvalidRecord = errors.New("invalid basestation record")

var timestampLayouts = []string{
	"2006/01/02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Record is one parsed BaseStation line. Empty strings mean the field was not present.
type Record struct {
	MessageType      string
	TransmissionType string
	ICAO             string
	Timestamp        time.Time // UTC
	Callsign         string
	Altitude         string
	Direction        string
	Latitude         string
	Longitude        string
}

// ParseRecord parses a BaseStation line whose timestamps are in the process local zone.
func ParseRecord(line string) (*Record, error) {
	return ParseRecordInLocation(line, time.Local)
}

// ParseRecordInLocation parses a BaseStation line, interpreting its date and time
// fields in loc and converting the result to UTC.
func ParseRecordInLocation(line string, loc *time.Location) (*Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) < MinRecordFields {
		return nil, fmt.Errorf("%w: %d fields", ErrInvalidRecord, len(fields))
	}

	rec := &Record{
		MessageType:      field(fields, FieldMessageType),
		TransmissionType: field(fields, FieldTransmissionType),
		ICAO:             field(fields, FieldICAO),
		Callsign:         field(fields, FieldCallsign),
		Altitude:         field(fields, FieldAltitude),
		Direction:        field(fields, FieldTrack),
		Latitude:         field(fields, FieldLatitude),
		Longitude:        field(fields, FieldLongitude),
	}
	if rec.ICAO == "" {
		return nil, fmt.Errorf("%w: missing icao", ErrInvalidRecord)
	}

	ts, err := parseTimestamp(field(fields, FieldDateGenerated), field(fields, FieldTimeGenerated), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	rec.Timestamp = ts

	return rec, nil
}

// field returns the trimmed value at idx, or "" when the line is shorter
func field(fields []string, idx int) string {
	if idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func parseTimestamp(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value := date + " " + clock
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q: %w", value, lastErr)
}
