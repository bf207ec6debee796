// Package geo provides the small amount of spherical geometry the engine
// needs: great-circle distances around the intersection and meter-to-degree
// offsets for the feed simulator.
package geo

import "math"

// EarthRadiusMeters is the mean earth radius used throughout.
const EarthRadiusMeters = 6371000.0

// HaversineDistance returns the distance in meters between two lat/lng pairs
// expressed in decimal degrees.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// MetersToLatDegrees converts a north-south displacement in meters to
// latitude degrees.
func MetersToLatDegrees(meters float64) float64 {
	return (meters / EarthRadiusMeters) * (180 / math.Pi)
}

// MetersToLngDegrees converts an east-west displacement in meters to
// longitude degrees at the given latitude.
func MetersToLngDegrees(meters, atLatitude float64) float64 {
	return (meters / (EarthRadiusMeters * math.Cos(atLatitude*math.Pi/180))) * (180 / math.Pi)
}

// ValidCoordinates reports whether lat/lng form a plausible WGS84 position.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
