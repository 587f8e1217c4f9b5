package maps

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dropoff/internal/types"
)

// StaticGeocoder serves a fixed address book, used when no Maps API key is
// configured (local runs, demos, tests).
type StaticGeocoder struct {
	points map[string]types.Point
}

type staticEntry struct {
	Address string  `yaml:"address"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
}

func NewStaticGeocoder(points map[string]types.Point) *StaticGeocoder {
	g := &StaticGeocoder{points: make(map[string]types.Point, len(points))}
	for addr, p := range points {
		g.points[strings.ToLower(normalize(addr))] = p
	}
	return g
}

// LoadStaticGeocoder reads a YAML list of {address, lat, lng} entries.
func LoadStaticGeocoder(path string) (*StaticGeocoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	var entries []staticEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse address book: %w", err)
	}
	points := make(map[string]types.Point, len(entries))
	for _, e := range entries {
		points[e.Address] = types.Point{Lat: e.Lat, Lng: e.Lng}
	}
	return NewStaticGeocoder(points), nil
}

func (g *StaticGeocoder) Geocode(_ context.Context, address string) (types.Point, error) {
	p, ok := g.points[strings.ToLower(normalize(address))]
	if !ok {
		return types.Point{}, ErrNoResult
	}
	return p, nil
}

func (g *StaticGeocoder) Resolve(ctx context.Context, address string) (types.Point, bool) {
	p, err := g.Geocode(ctx, address)
	return p, err == nil
}
