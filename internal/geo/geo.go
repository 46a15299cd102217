// Package geo holds the geofence arithmetic used by check-ins.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by DistanceMeters.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned by Validate for NaN, infinite or
// out-of-range coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate reports whether p can be fed to DistanceMeters.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return ErrInvalidCoordinate
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceMeters returns the haversine great-circle distance between a and b.
// Callers must Validate both points first.
func DistanceMeters(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c * 1000
}

// Within reports whether distance is inside a geofence of radius meters.
// The boundary itself counts as inside.
func Within(distance, radius float64) bool {
	return distance <= radius
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
