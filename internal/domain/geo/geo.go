// internal/domain/geo/geo.go

package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by all distance math.
const EarthRadiusMeters = 6371000.0

// Position represents a geographic point with optional accuracy metadata
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters, 0 when unknown
}

// DistanceMeters returns the great-circle distance between two positions
// using the Haversine formula. It is the single distance implementation in
// the engine; every other component must call it rather than re-derive it.
func DistanceMeters(a, b Position) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lon1 := a.Longitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	lon2 := b.Longitude * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLon / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BearingDegrees returns the initial bearing from a to b in degrees,
// normalized to [0, 360).
func BearingDegrees(a, b Position) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180.0

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	bearing := math.Atan2(y, x) * 180.0 / math.Pi
	return math.Mod(bearing+360.0, 360.0)
}

// Centroid returns the arithmetic mean of the given positions. A simple
// planar mean is acceptable at the radius scale the clusterer operates on
// (tens to low hundreds of meters); it must not be used for radii
// approaching kilometers without projection correction.
func Centroid(positions []Position) Position {
	if len(positions) == 0 {
		return Position{}
	}

	var sumLat, sumLon float64
	for _, p := range positions {
		sumLat += p.Latitude
		sumLon += p.Longitude
	}

	n := float64(len(positions))
	return Position{
		Latitude:  sumLat / n,
		Longitude: sumLon / n,
	}
}
