package models

import "time"

// Flight is the merged state of one aircraft built up from many BaseStation records.
// Every field except LogDateTime is only ever overwritten with a non-empty value.
type Flight struct {
	ICAO         string    // Aircraft address, the aggregation key
	RawCallsign  string    // Callsign as last reported; use Callsign() for display
	Altitude     string    // Feet, as reported
	Direction    string    // Track in degrees, as reported
	Latitude     string    // Decimal degrees, as reported
	Longitude    string    // Decimal degrees, as reported
	AircraftType string    // ICAO type designator, empty until resolved
	LogDateTime  time.Time // Timestamp of the last merged record (UTC)
}

// Callsign returns the reported callsign, falling back to the ICAO address.
func (f Flight) Callsign() string {
	if f.RawCallsign == "" {
		return f.ICAO
	}
	return f.RawCallsign
}

// Complete reports whether the flight has enough data to be published.
func (f Flight) Complete() bool {
	return f.ICAO != "" &&
		f.Altitude != "" &&
		f.Direction != "" &&
		f.Latitude != "" &&
		f.Longitude != "" &&
		!f.LogDateTime.IsZero()
}

// Overlay returns a copy of f with the non-empty values of rec applied on top.
// LogDateTime always takes the record's timestamp. AircraftType is left untouched.
func (f Flight) Overlay(rec *Record) Flight {
	f.ICAO = rec.ICAO
	f.LogDateTime = rec.Timestamp
	if rec.Callsign != "" {
		f.RawCallsign = rec.Callsign
	}
	if rec.Altitude != "" {
		f.Altitude = rec.Altitude
	}
	if rec.Direction != "" {
		f.Direction = rec.Direction
	}
	if rec.Latitude != "" {
		f.Latitude = rec.Latitude
	}
	if rec.Longitude != "" {
		f.Longitude = rec.Longitude
	}
	return f
}
