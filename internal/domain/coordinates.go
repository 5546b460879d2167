package domain

import "math"

// CoordinatePrecision is the number of decimal places kept for persisted coordinates.
const CoordinatePrecision = 6

// Immutable geographic coordinates (latitude, longitude) in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// InRange reports whether latitude is within [-90, 90] and longitude within [-180, 180].
func (c Coordinates) InRange() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Rounded returns the coordinates rounded to CoordinatePrecision decimal places.
func (c Coordinates) Rounded() Coordinates {
	return Coordinates{Lat: Round6(c.Lat), Lon: Round6(c.Lon)}
}

// Round6 rounds v half away from zero to six decimal places.
func Round6(v float64) float64 {
	const scale = 1e6
	return math.Round(v*scale) / scale
}
