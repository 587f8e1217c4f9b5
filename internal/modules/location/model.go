// README: Driver GPS fixes and their persisted snapshots.
package location

import (
	"errors"
	"math"
	"time"

	"dropoff/internal/types"
)

var (
	ErrInvalidPoint        = errors.New("invalid location sample")
	ErrNoPosition          = errors.New("no known position for driver")
	ErrAdaptiveUnavailable = errors.New("adaptive tracking unavailable")
)

// GeoPoint is one GPS fix. Accuracy is the horizontal error radius in metres;
// Speed (m/s) and Heading (degrees) are optional.
type GeoPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the coordinate is finite and within WGS-84 bounds.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p GeoPoint) Point() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

type Snapshot struct {
	ID         int64
	DriverID   types.ID
	Position   GeoPoint
	RecordedAt time.Time
}
