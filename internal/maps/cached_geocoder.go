package maps

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dropoff/internal/types"
)

const geocodeKeyPrefix = "geocode:"

// Geocoder is the lookup a CachedGeocoder falls back to.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// CachedGeocoder memoises lookups in Redis. Addresses are keyed by their
// whitespace-normalised, lower-cased form.
type CachedGeocoder struct {
	redis *redis.Client
	next  Geocoder
	ttl   time.Duration
}

func NewCachedGeocoder(rdb *redis.Client, next Geocoder, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{redis: rdb, next: next, ttl: ttl}
}

func cacheKey(address string) string {
	return geocodeKeyPrefix + strings.ToLower(normalize(address))
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (types.Point, error) {
	if normalize(address) == "" {
		return types.Point{}, ErrNoResult
	}
	key := cacheKey(address)

	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p types.Point
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, nil
		}
		log.Printf("geocode cache: dropping corrupt entry %s", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("geocode cache get %s: %v", key, err)
	}

	p, err := c.next.Geocode(ctx, address)
	if err != nil {
		return types.Point{}, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Printf("geocode cache set %s: %v", key, err)
		}
	}
	return p, nil
}

func (c *CachedGeocoder) Resolve(ctx context.Context, address string) (types.Point, bool) {
	p, err := c.Geocode(ctx, address)
	if err != nil {
		log.Printf("geocode %q: %v", address, err)
		return types.Point{}, false
	}
	return p, true
}
