package models

import "time"

// Aircraft is a row of the OpenSky aircraft database, reduced to the columns used for type lookups
type Aircraft struct {
	ICAO24            string // Primary key - 6 hex digit ICAO address, lower case
	Registration      string // Aircraft registration (e.g., N12345)
	ManufacturerICAO  string // Manufacturer ICAO code
	ManufacturerName  string // Manufacturer name
	Model             string // Aircraft model
	TypeCode          string // ICAO type designator (e.g., B738)
	ICAOAircraftClass string // ICAO aircraft class (e.g., L2J)
	Operator          string // Operator name
	OperatorCallsign  string // Operator callsign
	Owner             string // Owner name
}

// Sighting is one published flight, kept as history
type Sighting struct {
	ICAO         string
	Callsign     string
	AircraftType string
	Altitude     float64
	Direction    float64
	Latitude     float64
	Longitude    float64
	DistanceNM   float64
	ObservedAt   time.Time // LogDateTime of the published snapshot
	PublishedAt  time.Time
}

// NewSighting builds a history row from a published payload
func NewSighting(p *FlightPayload, observedAt, publishedAt time.Time) *Sighting {
	return &Sighting{
		ICAO:         p.ICAO,
		Callsign:     p.Callsign,
		AircraftType: p.AircraftType,
		Altitude:     p.Altitude,
		Direction:    p.Direction,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		DistanceNM:   p.NauticalMile,
		ObservedAt:   observedAt,
		PublishedAt:  publishedAt,
	}
}
