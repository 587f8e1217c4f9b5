package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"googlemaps.github.io/maps"

	"dropoff/internal/types"
)

func TestGeocodeService_Resolve(t *testing.T) {
	var gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		w.Header().Set("Content-Type", "application/json")
		if gotAddress == "nowhere" {
			_, _ = w.Write([]byte(`{"results":[],"status":"ZERO_RESULTS"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"geometry":{"location":{"lat":37.7936,"lng":-122.3958}}}],"status":"OK"}`))
	}))
	defer srv.Close()

	svc, err := NewGeocodeService("test-key", "us", maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	p, ok := svc.Resolve(context.Background(), "  1 Ferry   Building ")
	if !ok {
		t.Fatal("expected a result")
	}
	if p.Lat != 37.7936 || p.Lng != -122.3958 {
		t.Errorf("unexpected point %+v", p)
	}
	if gotAddress != "1 Ferry Building" {
		t.Errorf("address not normalised: %q", gotAddress)
	}

	if _, ok := svc.Resolve(context.Background(), "nowhere"); ok {
		t.Error("expected no result for unknown address")
	}
}

type countingGeocoder struct {
	calls atomic.Int32
	point types.Point
	err   error
}

func (c *countingGeocoder) Geocode(context.Context, string) (types.Point, error) {
	c.calls.Add(1)
	return c.point, c.err
}

func TestCachedGeocoder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingGeocoder{point: types.Point{Lat: 1.25, Lng: 103.8}}
	c := NewCachedGeocoder(rdb, next, time.Hour)
	ctx := context.Background()

	for _, addr := range []string{"10 Bayfront Ave", "10  bayfront   AVE", "10 Bayfront Ave"} {
		p, ok := c.Resolve(ctx, addr)
		if !ok || p != next.point {
			t.Fatalf("Resolve(%q) = %+v, %v", addr, p, ok)
		}
	}
	if n := next.calls.Load(); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}
	if ttl := mr.TTL("geocode:10 bayfront ave"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok := c.Resolve(ctx, "10 Bayfront Ave"); !ok {
		t.Fatal("expected refetch after expiry")
	}
	if n := next.calls.Load(); n != 2 {
		t.Fatalf("expected 2 upstream calls after expiry, got %d", n)
	}
}

func TestCachedGeocoder_FailuresNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingGeocoder{err: ErrNoResult}
	c := NewCachedGeocoder(rdb, next, time.Hour)

	if _, ok := c.Resolve(context.Background(), "nowhere"); ok {
		t.Fatal("expected failure")
	}
	if _, err := c.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if n := next.calls.Load(); n != 2 {
		t.Fatalf("failures must not be cached, got %d calls", n)
	}
	if _, ok := c.Resolve(context.Background(), "   "); ok {
		t.Fatal("blank address must not resolve")
	}
}

func TestLoadStaticGeocoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.yaml")
	content := `
- address: "1 Vendor Way"
  lat: 10.5
  lng: 20.25
- address: "2 Customer Rd"
  lat: -1
  lng: -2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	g, err := LoadStaticGeocoder(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, ok := g.Resolve(context.Background(), "1 vendor  way")
	if !ok || p.Lat != 10.5 || p.Lng != 20.25 {
		t.Fatalf("unexpected %+v %v", p, ok)
	}
	if _, ok := g.Resolve(context.Background(), "3 Unknown St"); ok {
		t.Fatal("unexpected hit")
	}
}
