package maps

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"googlemaps.github.io/maps"

	"dropoff/internal/obs"
	"dropoff/internal/types"
)

var ErrNoResult = errors.New("no geocoding result")

// GeocodeService handles address lookups against the Google Geocoding API.
type GeocodeService struct {
	client *maps.Client
	region string
}

// NewGeocodeService creates a GeocodeService with the given API key. region
// biases results (ccTLD, e.g. "us"); empty means no bias.
func NewGeocodeService(apiKey, region string, opts ...maps.ClientOption) (*GeocodeService, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client, region: region}, nil
}

// Geocode returns the coordinate of the best match for address.
func (s *GeocodeService) Geocode(ctx context.Context, address string) (_ types.Point, err error) {
	defer obs.Time(ctx, "maps.geocode")(&err)

	r := &maps.GeocodingRequest{
		Address: normalize(address),
		Region:  s.region,
	}
	results, err := s.client.Geocode(ctx, r)
	if err != nil {
		return types.Point{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, ErrNoResult
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// Resolve is Geocode for callers that only care whether a coordinate exists.
func (s *GeocodeService) Resolve(ctx context.Context, address string) (types.Point, bool) {
	p, err := s.Geocode(ctx, address)
	if err != nil {
		log.Printf("geocode %q: %v", address, err)
		return types.Point{}, false
	}
	return p, true
}

func normalize(address string) string {
	return strings.Join(strings.Fields(address), " ")
}
