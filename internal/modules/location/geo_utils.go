// Package location: geo_utils contains pure geographic computation helpers.
package location

import (
	"math"

	"dropoff/internal/types"
)

const earthRadiusMeters = 6371000.0

const (
	DefaultArrivalRadiusMeters = 100.0
	DefaultMaxAccuracyMeters   = 50.0
)

// distanceEpsilon absorbs float error so a point on the radius counts as inside.
const distanceEpsilon = 1e-6

// haversineMeters returns the great-circle distance in metres between two
// points specified in decimal degrees.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// DistanceMeters is the haversine distance between two points.
func DistanceMeters(a, b types.Point) float64 {
	return haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// IsWithinArrivalRadius reports whether a fix counts as being at target: it
// must lie within radiusMeters and be no less precise than maxAccuracyMeters.
func IsWithinArrivalRadius(live GeoPoint, target types.Point, radiusMeters, maxAccuracyMeters float64) bool {
	if !(live.Accuracy <= maxAccuracyMeters) {
		return false
	}
	return haversineMeters(live.Lat, live.Lng, target.Lat, target.Lng) <= radiusMeters+distanceEpsilon
}
