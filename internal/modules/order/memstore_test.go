package order

import (
	"context"
	"sync"
	"time"

	"dropoff/internal/types"
)

// memStore is an in-memory Repository with the same CAS semantics as Store.
type memStore struct {
	mu     sync.Mutex
	orders map[types.ID]Order
	events []Event

	// beforeWrite runs outside the lock ahead of every UpdateStatus call.
	beforeWrite func()
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[types.ID]Order)}
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *o
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *memStore) ListAvailable(_ context.Context, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Status == StatusAvailable {
			o := o
			out = append(out, &o)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ActiveByDriver(_ context.Context, driverID types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.activeLocked(driverID); ok {
		return &o, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) HasActiveByDriver(_ context.Context, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.activeLocked(driverID)
	return ok, nil
}

func (m *memStore) activeLocked(driverID types.ID) (Order, bool) {
	for _, o := range m.orders {
		if o.DriverID != nil && *o.DriverID == driverID && o.Status.Active() {
			return o, true
		}
	}
	return Order{}, false
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	o.UpdatedAt = at
	m.orders[id] = o
	return true, nil
}

func (m *memStore) Claim(_ context.Context, id, driverID types.ID, version int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != StatusAvailable || o.StatusVersion != version {
		return false, nil
	}
	if _, busy := m.activeLocked(driverID); busy {
		return false, nil
	}
	d := driverID
	o.Status = StatusAssigned
	o.StatusVersion++
	o.DriverID = &d
	o.UpdatedAt = at
	m.orders[id] = o
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := *e
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, orderID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// put stores o directly, bypassing the service.
func (m *memStore) put(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}
