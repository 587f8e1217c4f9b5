package proximity

import (
	"context"
	"sync"

	"dropoff/internal/events"
	"dropoff/internal/modules/order"
	"dropoff/internal/types"
)

// Status is a point-in-time view of one driver's monitor.
type Status struct {
	DriverID types.ID `json:"driver_id"`
	OrderID  types.ID `json:"order_id,omitempty"`
	State    State    `json:"state"`
}

// Manager owns one Monitor per driver and drives them from order events.
type Manager struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	monitors map[types.ID]*Monitor
}

func NewManager(cfg Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		monitors: make(map[types.ID]*Monitor),
	}
}

func (m *Manager) monitor(driverID types.ID) *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[driverID]
	if !ok {
		mon = NewMonitor(driverID, m.cfg, m.deps)
		m.monitors[driverID] = mon
	}
	return mon
}

func (m *Manager) existing(driverID types.ID) *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitors[driverID]
}

// Start replaces any session the driver has with one for orderID.
func (m *Manager) Start(ctx context.Context, driverID, orderID types.ID) error {
	return m.monitor(driverID).Start(ctx, orderID)
}

func (m *Manager) Stop(driverID types.ID) {
	if mon := m.existing(driverID); mon != nil {
		mon.Stop()
	}
}

func (m *Manager) Status(driverID types.ID) Status {
	st := Status{DriverID: driverID, State: StateIdle}
	if mon := m.existing(driverID); mon != nil {
		st.State = mon.State()
		st.OrderID = mon.CurrentOrderID()
	}
	return st
}

// Shutdown stops every monitor and waits for their sessions to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	mons := make([]*Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		mons = append(mons, mon)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, mon := range mons {
		wg.Add(1)
		go func(mon *Monitor) {
			defer wg.Done()
			mon.Stop()
		}(mon)
	}
	wg.Wait()
}

// HandleEvent is an events.Handler. Entering an en-route status starts a
// session; a terminal status stops the driver's session for that order.
// Arrival statuses are ignored here: a session ends itself on arrival.
func (m *Manager) HandleEvent(e events.Event) {
	if e.DriverID == "" {
		return
	}
	to := order.Status(e.To)
	switch {
	case to == order.StatusOnRouteToVendor || to == order.StatusOnRouteToCustomer:
		// Each leg gets a fresh session; Start joins whatever the last one left.
		mon := m.monitor(e.DriverID)
		if err := mon.Start(context.Background(), e.OrderID); err != nil {
			m.deps.Logger.Errorf("start monitor for driver %s order %s: %v", e.DriverID, e.OrderID, err)
		}
	case to.Terminal():
		mon := m.existing(e.DriverID)
		if mon != nil && mon.CurrentOrderID() == e.OrderID {
			mon.Stop()
		}
	}
}
