package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlightPayload(t *testing.T) {
	f := completeFlight()
	f.AircraftType = "A320"

	p, err := NewFlightPayload(f, 12.3456)
	require.NoError(t, err)

	assert.Equal(t, "A1B2C3", p.ICAO)
	assert.Equal(t, "A1B2C3", p.Callsign) // falls back to icao
	assert.Equal(t, 35000.0, p.Altitude)
	assert.Equal(t, 90.0, p.Direction)
	assert.Equal(t, 40.0, p.Latitude)
	assert.Equal(t, -73.0, p.Longitude)
	assert.Equal(t, "A320", p.AircraftType)
	assert.Equal(t, 12.3456, p.NauticalMile)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"icao":"A1B2C3","flt":"A1B2C3","alt":35000,"dir":90,"lat":40,"lng":-73,"t":"A320","nm":12.3456}`,
		string(data))
}

func TestNewFlightPayload_NonNumeric(t *testing.T) {
	f := completeFlight()
	f.Altitude = "ground"

	p, err := NewFlightPayload(f, 1)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Nil(t, p)
}
