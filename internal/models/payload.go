package models

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidPayload is returned when a flight's numeric fields cannot be encoded
var ErrInvalidPayload = errors.New("invalid flight payload")

// FlightPayload is the JSON document published for a flight in range
type FlightPayload struct {
	ICAO         string  `json:"icao"`
	Callsign     string  `json:"flt"`
	Altitude     float64 `json:"alt"`
	Direction    float64 `json:"dir"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
	AircraftType string  `json:"t"`
	NauticalMile float64 `json:"nm"`
}

// NewFlightPayload converts the string-encoded flight fields into numbers
func NewFlightPayload(f Flight, nm float64) (*FlightPayload, error) {
	p := &FlightPayload{
		ICAO:         f.ICAO,
		Callsign:     f.Callsign(),
		AircraftType: f.AircraftType,
		NauticalMile: nm,
	}

	var err error
	if p.Altitude, err = parseNumber("alt", f.Altitude); err != nil {
		return nil, err
	}
	if p.Direction, err = parseNumber("dir", f.Direction); err != nil {
		return nil, err
	}
	if p.Latitude, err = parseNumber("lat", f.Latitude); err != nil {
		return nil, err
	}
	if p.Longitude, err = parseNumber("lng", f.Longitude); err != nil {
		return nil, err
	}
	return p, nil
}

func parseNumber(name, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPayload, name, value)
	}
	return v, nil
}
