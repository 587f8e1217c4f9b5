// README: Per-driver proximity monitor; turns GPS fixes into automatic arrival transitions.
package proximity

import (
	"context"
	"errors"
	"sync"
	"time"

	"dropoff/internal/modules/location"
	"dropoff/internal/modules/order"
	"dropoff/internal/types"
)

var ErrMissingOrder = errors.New("proximity: order id is required")

// Logger provides minimal logging for the monitor.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Lifecycle is the order service surface the monitor drives.
type Lifecycle interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	UpdateStatus(ctx context.Context, cmd order.UpdateStatusCommand) (*order.Order, error)
}

// Geocoder resolves a waypoint address. It reports false instead of failing.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (types.Point, bool)
}

// LocationSource supplies the driver's fixes.
type LocationSource interface {
	Subscribe(ctx context.Context, driverID types.ID, minMoveMeters float64) (<-chan location.GeoPoint, error)
	CurrentPosition(ctx context.Context, driverID types.ID) (location.GeoPoint, error)
}

// AdaptiveTracker is a self-pacing fix stream preferred over polling.
type AdaptiveTracker interface {
	Track(ctx context.Context, driverID types.ID) (<-chan location.GeoPoint, error)
}

type Config struct {
	ArrivalRadiusMeters float64
	MaxAccuracyMeters   float64
	ConfirmationWindow  time.Duration
	MinReadings         int
	PollInterval        time.Duration
	MinMoveMeters       float64
	SampleBuffer        int
}

func DefaultConfig() Config {
	return Config{
		ArrivalRadiusMeters: location.DefaultArrivalRadiusMeters,
		MaxAccuracyMeters:   location.DefaultMaxAccuracyMeters,
		ConfirmationWindow:  60 * time.Second,
		MinReadings:         3,
		PollInterval:        10 * time.Second,
		MinMoveMeters:       10,
		SampleBuffer:        16,
	}
}

type Deps struct {
	Lifecycle Lifecycle
	Geocoder  Geocoder
	Source    LocationSource
	// Adaptive is optional; when it is nil or unavailable the monitor polls.
	Adaptive AdaptiveTracker
	Logger   Logger
	Now      func() time.Time
}

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Monitor runs at most one session for one driver. Every producer feeds a
// single bounded channel drained by one consumer, so samples for a session
// are evaluated strictly in arrival order.
type Monitor struct {
	driverID types.ID
	cfg      Config
	deps     Deps

	// lifecycleMu serialises Start and Stop.
	lifecycleMu sync.Mutex

	mu      sync.Mutex
	session *session
	state   State
}

type session struct {
	orderID types.ID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	tracker *Tracker

	// consumer-owned
	targets map[Waypoint]types.Point
	lastFix time.Time
}

func NewMonitor(driverID types.ID, cfg Config, deps Deps) *Monitor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	return &Monitor{driverID: driverID, cfg: cfg, deps: deps, state: StateIdle}
}

// Start tears down any running session and begins watching orderID. The
// session outlives ctx's cancellation; it ends on Stop, on a confirmed
// arrival, or when the order leaves its en-route legs for good.
func (m *Monitor) Start(ctx context.Context, orderID types.ID) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.stopLocked()
	if orderID == "" {
		return ErrMissingOrder
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		orderID: orderID,
		cancel:  cancel,
		tracker: NewTracker(m.cfg.ConfirmationWindow, m.cfg.MinReadings),
		targets: make(map[Waypoint]types.Point),
	}
	samples := make(chan location.GeoPoint, m.cfg.SampleBuffer)

	// Published before any goroutine runs so the consumer can end it.
	m.mu.Lock()
	prev := m.state
	m.session = sess
	m.state = StateRunning
	m.mu.Unlock()

	if err := m.startProducers(sctx, sess, samples); err != nil {
		cancel()
		sess.wg.Wait()
		m.mu.Lock()
		m.session = nil
		m.state = prev
		m.mu.Unlock()
		return err
	}

	m.deps.Logger.Infof("monitoring driver %s order %s", m.driverID, orderID)
	sess.wg.Add(1)
	go m.consume(sctx, sess, samples)
	return nil
}

func (m *Monitor) startProducers(ctx context.Context, sess *session, samples chan<- location.GeoPoint) error {
	if m.deps.Adaptive != nil {
		ch, err := m.deps.Adaptive.Track(ctx, m.driverID)
		if err == nil {
			sess.wg.Add(1)
			go m.forward(ctx, sess, ch, samples)
			return nil
		}
		if !errors.Is(err, location.ErrAdaptiveUnavailable) {
			m.deps.Logger.Errorf("adaptive tracking for driver %s: %v", m.driverID, err)
		}
	}

	sub, err := m.deps.Source.Subscribe(ctx, m.driverID, m.cfg.MinMoveMeters)
	if err != nil {
		return err
	}
	sess.wg.Add(2)
	go m.forward(ctx, sess, sub, samples)
	go m.poll(ctx, sess, samples)
	return nil
}

func (m *Monitor) forward(ctx context.Context, sess *session, in <-chan location.GeoPoint, out chan<- location.GeoPoint) {
	defer sess.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Monitor) poll(ctx context.Context, sess *session, out chan<- location.GeoPoint) {
	defer sess.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p, err := m.deps.Source.CurrentPosition(ctx, m.driverID)
		switch {
		case err == nil:
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		case !errors.Is(err, location.ErrNoPosition) && ctx.Err() == nil:
			m.deps.Logger.Errorf("poll driver %s: %v", m.driverID, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) consume(ctx context.Context, sess *session, samples <-chan location.GeoPoint) {
	defer sess.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-samples:
			if m.handle(ctx, sess, p) {
				m.endSession(sess)
				return
			}
		}
	}
}

// handle evaluates one fix and reports whether the session should end.
func (m *Monitor) handle(ctx context.Context, sess *session, p location.GeoPoint) bool {
	if !p.Valid() {
		return false
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = m.deps.Now()
	} else if !p.Timestamp.After(sess.lastFix) {
		// seen already via the other producer, or arrived out of order
		return false
	}
	sess.lastFix = p.Timestamp

	o, err := m.deps.Lifecycle.Get(ctx, sess.orderID)
	if err != nil {
		m.deps.Logger.Errorf("load order %s: %v", sess.orderID, err)
		return false
	}

	var (
		wp      Waypoint
		address string
		next    order.Status
	)
	switch o.Status {
	case order.StatusOnRouteToVendor:
		wp, address, next = WaypointVendor, o.VendorAddress, order.StatusArrivedAtVendor
		sess.tracker.Reset(o.ID, WaypointCustomer)
	case order.StatusOnRouteToCustomer:
		wp, address, next = WaypointCustomer, o.CustomerAddress, order.StatusArrivedAtCustomer
		sess.tracker.Reset(o.ID, WaypointVendor)
	case order.StatusArrivedAtVendor, order.StatusArrivedAtCustomer:
		m.deps.Logger.Infof("order %s is %s, ending session", o.ID, o.Status)
		return true
	default:
		sess.tracker.ResetOrder(o.ID)
		if o.Status.Terminal() {
			m.deps.Logger.Infof("order %s is %s, ending session", o.ID, o.Status)
			return true
		}
		return false
	}

	target, ok := sess.targets[wp]
	if !ok {
		target, ok = m.deps.Geocoder.Resolve(ctx, address)
		if !ok {
			m.deps.Logger.Errorf("cannot geocode %s address for order %s, skipping sample", wp, o.ID)
			return false
		}
		sess.targets[wp] = target
	}

	if !location.IsWithinArrivalRadius(p, target, m.cfg.ArrivalRadiusMeters, m.cfg.MaxAccuracyMeters) {
		return false
	}
	if !sess.tracker.RecordPassingSample(o.ID, wp, p.Timestamp) {
		return false
	}

	_, err = m.deps.Lifecycle.UpdateStatus(ctx, order.UpdateStatusCommand{
		OrderID:  o.ID,
		Status:   next,
		DriverID: m.driverID,
		Actor:    order.ActorSystem,
	})
	switch {
	case err == nil:
		m.deps.Logger.Infof("order %s auto-advanced to %s", o.ID, next)
		return true
	case errors.Is(err, order.ErrValidation), errors.Is(err, order.ErrConflict):
		m.deps.Logger.Infof("order %s not advanced to %s: %v", o.ID, next, err)
	default:
		m.deps.Logger.Errorf("advance order %s to %s: %v", o.ID, next, err)
	}
	return false
}

// endSession is the consumer's own exit path. It must not wait on the
// session's wait group, which the consumer itself belongs to. The session
// stays attached until the next Start or Stop joins its goroutines.
func (m *Monitor) endSession(sess *session) {
	sess.cancel()
	m.mu.Lock()
	if m.session == sess {
		m.state = StateStopped
	}
	m.mu.Unlock()
	sess.tracker.Clear()
}

// Stop ends the current session and returns once no producer or consumer of
// it is still running. Safe to call repeatedly or before Start.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	m.mu.Lock()
	sess := m.session
	running := m.state == StateRunning
	m.session = nil
	if sess != nil {
		m.state = StateStopped
	}
	m.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	sess.wg.Wait()
	if running {
		sess.tracker.Clear()
		m.deps.Logger.Infof("stopped driver %s order %s", m.driverID, sess.orderID)
	}
}

func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateRunning
}

// CurrentOrderID is empty when no session is running.
func (m *Monitor) CurrentOrderID() types.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.state != StateRunning {
		return ""
	}
	return m.session.orderID
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
