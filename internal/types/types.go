// README: Shared identifiers and coordinates used across modules.
package types

// ID is an opaque identifier for orders and drivers.
type ID string

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}
