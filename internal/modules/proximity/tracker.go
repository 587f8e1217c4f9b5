// README: Debounced arrival confirmation over a sliding time window.
package proximity

import (
	"sync"
	"time"

	"dropoff/internal/types"
)

// Waypoint is the leg of a delivery a proximity sample is evaluated against.
type Waypoint string

const (
	WaypointVendor   Waypoint = "vendor"
	WaypointCustomer Waypoint = "customer"
)

type windowKey struct {
	OrderID  types.ID
	Waypoint Waypoint
}

// Tracker confirms an arrival once minReadings in-radius samples fall within
// one window. Out-of-radius samples are never recorded, so they do not reset
// progress; only elapsed time or an explicit Reset does.
type Tracker struct {
	window      time.Duration
	minReadings int

	mu      sync.Mutex
	windows map[windowKey][]time.Time
}

func NewTracker(window time.Duration, minReadings int) *Tracker {
	return &Tracker{
		window:      window,
		minReadings: minReadings,
		windows:     make(map[windowKey][]time.Time),
	}
}

// RecordPassingSample adds an in-radius reading taken at ts and reports
// whether the arrival is now confirmed. A confirmed window is cleared.
func (t *Tracker) RecordPassingSample(orderID types.ID, wp Waypoint, ts time.Time) bool {
	key := windowKey{OrderID: orderID, Waypoint: wp}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.windows[key][:0]
	for _, seen := range t.windows[key] {
		if ts.Sub(seen) <= t.window {
			kept = append(kept, seen)
		}
	}
	kept = append(kept, ts)

	if len(kept) >= t.minReadings {
		delete(t.windows, key)
		return true
	}
	t.windows[key] = kept
	return false
}

func (t *Tracker) Reset(orderID types.ID, wp Waypoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, windowKey{OrderID: orderID, Waypoint: wp})
}

// ResetOrder discards both windows of an order.
func (t *Tracker) ResetOrder(orderID types.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, windowKey{OrderID: orderID, Waypoint: WaypointVendor})
	delete(t.windows, windowKey{OrderID: orderID, Waypoint: WaypointCustomer})
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows = make(map[windowKey][]time.Time)
}

// Pending returns the number of in-window readings held for a waypoint.
func (t *Tracker) Pending(orderID types.ID, wp Waypoint) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows[windowKey{OrderID: orderID, Waypoint: wp}])
}
