package proximity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"dropoff/internal/modules/location"
	"dropoff/internal/modules/order"
	"dropoff/internal/types"
)

var (
	vendorPoint   = types.Point{Lat: 40.7128, Lng: -74.0060}
	customerPoint = types.Point{Lat: 40.7306, Lng: -73.9352}
	farPoint      = types.Point{Lat: 40.8000, Lng: -74.1000}
)

type fakeLifecycle struct {
	mu      sync.Mutex
	orders  map[types.ID]*order.Order
	gets    int
	updates []order.UpdateStatusCommand
}

func newFakeLifecycle(orders ...*order.Order) *fakeLifecycle {
	f := &fakeLifecycle{orders: make(map[types.ID]*order.Order)}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeLifecycle) Get(_ context.Context, id types.ID) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeLifecycle) UpdateStatus(_ context.Context, cmd order.UpdateStatusCommand) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, cmd)
	o, ok := f.orders[cmd.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if res := order.Validate(o.Status, cmd.Status); !res.Allowed {
		return nil, order.ErrValidation
	}
	o.Status = cmd.Status
	cp := *o
	return &cp, nil
}

func (f *fakeLifecycle) setStatus(id types.ID, s order.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].Status = s
}

func (f *fakeLifecycle) status(id types.ID) order.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

func (f *fakeLifecycle) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeLifecycle) updateCalls() []order.UpdateStatusCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]order.UpdateStatusCommand(nil), f.updates...)
}

type fakeGeocoder struct {
	mu     sync.Mutex
	points map[string]types.Point
	calls  int
}

func (g *fakeGeocoder) Resolve(_ context.Context, address string) (types.Point, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	p, ok := g.points[address]
	return p, ok
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeSource hands every subscriber the same feed; CurrentPosition never has a fix.
type fakeSource struct {
	feed chan location.GeoPoint

	mu         sync.Mutex
	subscribed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{feed: make(chan location.GeoPoint, 16)}
}

func (s *fakeSource) Subscribe(context.Context, types.ID, float64) (<-chan location.GeoPoint, error) {
	s.mu.Lock()
	s.subscribed++
	s.mu.Unlock()
	return s.feed, nil
}

func (s *fakeSource) CurrentPosition(context.Context, types.ID) (location.GeoPoint, error) {
	return location.GeoPoint{}, location.ErrNoPosition
}

func (s *fakeSource) subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

type fakeAdaptive struct {
	feed chan location.GeoPoint
	err  error
}

func (a *fakeAdaptive) Track(context.Context, types.ID) (<-chan location.GeoPoint, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.feed, nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fix(p types.Point, acc float64, offset time.Duration) location.GeoPoint {
	return location.GeoPoint{Lat: p.Lat, Lng: p.Lng, Accuracy: acc, Timestamp: t0.Add(offset)}
}

func testOrder(id types.ID, s order.Status) *order.Order {
	driver := types.ID("d1")
	return &order.Order{
		ID:              id,
		Status:          s,
		VendorAddress:   "1 Vendor St",
		CustomerAddress: "9 Customer Ave",
		DriverID:        &driver,
	}
}

func testGeocoder() *fakeGeocoder {
	return &fakeGeocoder{points: map[string]types.Point{
		"1 Vendor St":    vendorPoint,
		"9 Customer Ave": customerPoint,
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitorAdvancesToVendorAfterConfirmedReadings(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !mon.IsMonitoring() || mon.CurrentOrderID() != "o1" {
		t.Fatalf("monitor not running for o1: %s %q", mon.State(), mon.CurrentOrderID())
	}

	src.feed <- fix(vendorPoint, 10, 0)
	src.feed <- fix(vendorPoint, 10, 10*time.Second)
	waitFor(t, "two samples handled", func() bool { return lc.getCount() == 2 })
	if len(lc.updateCalls()) != 0 {
		t.Fatal("advanced before the third reading")
	}

	src.feed <- fix(vendorPoint, 10, 20*time.Second)
	waitFor(t, "arrival at vendor", func() bool { return lc.status("o1") == order.StatusArrivedAtVendor })

	calls := lc.updateCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one status write, got %d", len(calls))
	}
	if calls[0].Actor != order.ActorSystem || calls[0].DriverID != "d1" {
		t.Errorf("unexpected command %+v", calls[0])
	}
	waitFor(t, "session end after arrival", func() bool { return !mon.IsMonitoring() })
	if mon.State() != StateStopped || mon.CurrentOrderID() != "" {
		t.Fatalf("state = %s order = %q", mon.State(), mon.CurrentOrderID())
	}
}

func TestMonitorAdvancesToCustomer(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToCustomer))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		src.feed <- fix(customerPoint, 5, time.Duration(i)*5*time.Second)
	}
	waitFor(t, "arrival at customer", func() bool { return lc.status("o1") == order.StatusArrivedAtCustomer })
}

func TestMonitorIgnoresUnusableSamples(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.feed <- fix(vendorPoint, 10, 0)
	src.feed <- fix(farPoint, 10, 5*time.Second)
	src.feed <- fix(vendorPoint, 60, 10*time.Second)
	src.feed <- fix(vendorPoint, 10, 15*time.Second)
	waitFor(t, "four samples handled", func() bool { return lc.getCount() == 4 })
	if len(lc.updateCalls()) != 0 {
		t.Fatal("far or inaccurate samples counted toward arrival")
	}

	// Failing samples do not reset progress.
	src.feed <- fix(vendorPoint, 10, 20*time.Second)
	waitFor(t, "arrival at vendor", func() bool { return lc.status("o1") == order.StatusArrivedAtVendor })
}

func TestMonitorDropsRepeatedAndStaleFixes(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		src.feed <- fix(vendorPoint, 10, 0)
	}
	src.feed <- fix(vendorPoint, 10, -5*time.Second)
	src.feed <- fix(farPoint, 10, time.Second)
	waitFor(t, "distinct samples handled", func() bool { return lc.getCount() == 2 })
	if len(lc.updateCalls()) != 0 {
		t.Fatal("a repeated fix was counted more than once")
	}
}

func TestMonitorSkipsWhenGeocodingFails(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	geo := &fakeGeocoder{points: map[string]types.Point{}}
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: geo, Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		src.feed <- fix(vendorPoint, 10, time.Duration(i)*time.Second)
	}
	waitFor(t, "three geocode attempts", func() bool { return geo.callCount() == 3 })
	if len(lc.updateCalls()) != 0 {
		t.Fatal("advanced without a resolved waypoint")
	}
	if !mon.IsMonitoring() {
		t.Fatal("geocoding failure must not end the session")
	}
}

func TestMonitorCachesResolvedWaypoint(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	geo := testGeocoder()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: geo, Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.feed <- fix(farPoint, 10, 0)
	src.feed <- fix(farPoint, 10, time.Second)
	waitFor(t, "two samples handled", func() bool { return lc.getCount() == 2 })
	if n := geo.callCount(); n != 1 {
		t.Fatalf("geocoder called %d times, want 1", n)
	}
}

func TestMonitorEndsOnTerminalOrder(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	lc.setStatus("o1", order.StatusCancelled)
	src.feed <- fix(vendorPoint, 10, 0)

	waitFor(t, "session end", func() bool { return !mon.IsMonitoring() })
	if mon.State() != StateStopped || mon.CurrentOrderID() != "" {
		t.Fatalf("state = %s order = %q", mon.State(), mon.CurrentOrderID())
	}
	mon.Stop()
}

func TestMonitorEndsWhenFirstSampleFindsTerminalOrder(t *testing.T) {
	for i := 0; i < 100; i++ {
		lc := newFakeLifecycle(testOrder("o1", order.StatusCancelled))
		src := newFakeSource()
		src.feed <- fix(vendorPoint, 10, 0)
		mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})

		if err := mon.Start(context.Background(), "o1"); err != nil {
			t.Fatalf("start: %v", err)
		}
		waitFor(t, "session end", func() bool { return !mon.IsMonitoring() })
		if mon.State() != StateStopped || mon.CurrentOrderID() != "" {
			t.Fatalf("run %d: state = %s order = %q", i, mon.State(), mon.CurrentOrderID())
		}
		mon.Stop()
	}
}

func TestMonitorRestartsAfterArrival(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		src.feed <- fix(vendorPoint, 10, time.Duration(i)*time.Second)
	}
	waitFor(t, "vendor leg end", func() bool { return !mon.IsMonitoring() })

	lc.setStatus("o1", order.StatusOnRouteToCustomer)
	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if src.subscriptions() != 2 {
		t.Fatalf("subscriptions = %d, want a fresh one for the customer leg", src.subscriptions())
	}
	for i := 0; i < 3; i++ {
		src.feed <- fix(customerPoint, 10, time.Minute+time.Duration(i)*time.Second)
	}
	waitFor(t, "arrival at customer", func() bool { return lc.status("o1") == order.StatusArrivedAtCustomer })
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errorf(format string, args ...interface{}) { l.Infof(format, args...) }

func TestMonitorLogsStartAndStop(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	logs := &recordingLogger{}
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: newFakeSource(), Logger: logs})

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mon.Stop()

	want := []string{"monitoring driver d1 order o1", "stopped driver d1 order o1"}
	logs.mu.Lock()
	defer logs.mu.Unlock()
	if len(logs.lines) != len(want) {
		t.Fatalf("log lines = %q", logs.lines)
	}
	for i, line := range logs.lines {
		if line != want[i] {
			t.Errorf("line %d = %q, want %q", i, line, want[i])
		}
	}
}

func TestMonitorResetsWindowsOutsideEnRoute(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.feed <- fix(vendorPoint, 10, 0)
	src.feed <- fix(vendorPoint, 10, time.Second)
	waitFor(t, "two samples handled", func() bool { return lc.getCount() == 2 })

	lc.setStatus("o1", order.StatusPickedUp)
	src.feed <- fix(vendorPoint, 10, 2*time.Second)
	waitFor(t, "picked-up sample handled", func() bool { return lc.getCount() == 3 })

	lc.setStatus("o1", order.StatusOnRouteToVendor)
	src.feed <- fix(vendorPoint, 10, 3*time.Second)
	waitFor(t, "fourth sample handled", func() bool { return lc.getCount() == 4 })
	if len(lc.updateCalls()) != 0 {
		t.Fatal("readings survived a status outside the en-route legs")
	}
}

func TestMonitorDefersToManualArrival(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.feed <- fix(vendorPoint, 10, 0)
	src.feed <- fix(vendorPoint, 10, time.Second)
	waitFor(t, "two samples handled", func() bool { return lc.getCount() == 2 })

	// The driver confirms manually between the read and the write.
	lc.setStatus("o1", order.StatusArrivedAtVendor)
	src.feed <- fix(vendorPoint, 10, 2*time.Second)
	waitFor(t, "third sample handled", func() bool { return lc.getCount() == 3 })
	if n := len(lc.updateCalls()); n != 0 {
		t.Fatalf("monitor wrote %d times after the manual arrival", n)
	}
	waitFor(t, "session end after manual arrival", func() bool { return !mon.IsMonitoring() })
}

func TestMonitorPrefersAdaptiveTracking(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	ad := &fakeAdaptive{feed: make(chan location.GeoPoint, 4)}
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src, Adaptive: ad})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		ad.feed <- fix(vendorPoint, 10, time.Duration(i)*time.Second)
	}
	waitFor(t, "arrival at vendor", func() bool { return lc.status("o1") == order.StatusArrivedAtVendor })
	if src.subscriptions() != 0 {
		t.Fatal("fell back to polling although adaptive tracking was available")
	}
}

func TestMonitorFallsBackWhenAdaptiveUnavailable(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	ad := &fakeAdaptive{err: location.ErrAdaptiveUnavailable}
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src, Adaptive: ad})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if src.subscriptions() != 1 {
		t.Fatalf("subscriptions = %d, want 1", src.subscriptions())
	}
}

func TestMonitorStartReplacesSession(t *testing.T) {
	lc := newFakeLifecycle(
		testOrder("o1", order.StatusOnRouteToVendor),
		testOrder("o2", order.StatusOnRouteToVendor),
	)
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start o1: %v", err)
	}
	if err := mon.Start(context.Background(), "o2"); err != nil {
		t.Fatalf("start o2: %v", err)
	}
	if mon.CurrentOrderID() != "o2" {
		t.Fatalf("current order = %q, want o2", mon.CurrentOrderID())
	}
	for i := 0; i < 3; i++ {
		src.feed <- fix(vendorPoint, 10, time.Duration(i)*time.Second)
	}
	waitFor(t, "o2 arrival", func() bool { return lc.status("o2") == order.StatusArrivedAtVendor })
	if lc.status("o1") != order.StatusOnRouteToVendor {
		t.Fatal("replaced session still acted on o1")
	}
}

func TestMonitorStartRequiresOrder(t *testing.T) {
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: newFakeLifecycle(), Geocoder: testGeocoder(), Source: newFakeSource()})
	if err := mon.Start(context.Background(), ""); err != ErrMissingOrder {
		t.Fatalf("err = %v, want ErrMissingOrder", err)
	}
	if mon.IsMonitoring() {
		t.Fatal("monitoring without an order")
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})

	mon.Stop()
	if mon.IsMonitoring() || mon.State() != StateIdle {
		t.Fatalf("never-started monitor reports %s", mon.State())
	}

	if err := mon.Start(context.Background(), "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mon.Stop()
	mon.Stop()
	if mon.IsMonitoring() || mon.State() != StateStopped {
		t.Fatalf("state after stop = %s", mon.State())
	}

	// Nothing consumes samples once Stop has returned.
	src.feed <- fix(vendorPoint, 10, 0)
	time.Sleep(20 * time.Millisecond)
	if n := lc.getCount(); n != 0 {
		t.Fatalf("%d samples handled after stop", n)
	}
}

func TestMonitorSessionOutlivesStartContext(t *testing.T) {
	lc := newFakeLifecycle(testOrder("o1", order.StatusOnRouteToVendor))
	src := newFakeSource()
	mon := NewMonitor("d1", testConfig(), Deps{Lifecycle: lc, Geocoder: testGeocoder(), Source: src})
	t.Cleanup(mon.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	if err := mon.Start(ctx, "o1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	for i := 0; i < 3; i++ {
		src.feed <- fix(vendorPoint, 10, time.Duration(i)*time.Second)
	}
	waitFor(t, "arrival at vendor", func() bool { return lc.status("o1") == order.StatusArrivedAtVendor })
}
