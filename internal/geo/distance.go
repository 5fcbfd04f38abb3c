package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusNM is the mean earth radius in nautical miles
	EarthRadiusNM = 3440.07

	degreesToRadians = math.Pi / 180.0
)

// RangeFilter decides whether a position lies within a radius of a fixed reference point
type RangeFilter struct {
	latRad   float64
	lonRad   float64
	radiusNM float64
}

// NewRangeFilter creates a filter around (latitude, longitude) in decimal degrees
func NewRangeFilter(latitude, longitude, radiusNM float64) (*RangeFilter, error) {
	if latitude < -90 || latitude > 90 {
		return nil, fmt.Errorf("latitude out of range: %f", latitude)
	}
	if longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("longitude out of range: %f", longitude)
	}
	if radiusNM < 0 {
		return nil, fmt.Errorf("radius must not be negative: %f", radiusNM)
	}
	return &RangeFilter{
		latRad:   latitude * degreesToRadians,
		lonRad:   longitude * degreesToRadians,
		radiusNM: radiusNM,
	}, nil
}

// Distance returns the great-circle distance in nautical miles from the reference
// point to (latitude, longitude), rounded to 4 decimal places.
func (r *RangeFilter) Distance(latitude, longitude float64) float64 {
	latRad := latitude * degreesToRadians
	lonRad := longitude * degreesToRadians

	// Haversine
	dLat := r.latRad - latRad
	dLon := r.lonRad - lonRad
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(latRad)*math.Cos(r.latRad)*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return Round(EarthRadiusNM*c, 4)
}

// Eligible reports whether distanceNM is strictly inside the radius
func (r *RangeFilter) Eligible(distanceNM float64) bool {
	return distanceNM < r.radiusNM
}

// RadiusNM returns the configured radius
func (r *RangeFilter) RadiusNM() float64 {
	return r.radiusNM
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
