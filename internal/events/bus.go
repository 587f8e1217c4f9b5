// README: In-process event bus for order transitions; subscribers run synchronously.
package events

import (
	"sync"
	"time"

	"dropoff/internal/types"
)

// Type names an event kind.
type Type string

const (
	TypeOrderAccepted   Type = "order.accepted"
	TypeOrderTransition Type = "order.transition"
)

// Event describes a committed status change.
type Event struct {
	Type      Type      `json:"type"`
	OrderID   types.ID  `json:"order_id"`
	DriverID  types.ID  `json:"driver_id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriberID uniquely identifies a Bus subscriber.
type SubscriberID uint64

// Handler is invoked for each emitted event.
type Handler func(Event)

type subscriber struct {
	id     SubscriberID
	fn     Handler
	filter map[Type]struct{}
}

// Bus dispatches events to subscribers in registration order on the
// emitting goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for all event types.
func (b *Bus) Subscribe(fn Handler) SubscriberID {
	return b.add(subscriber{fn: fn})
}

// SubscribeTypes registers fn only for the given types.
func (b *Bus) SubscribeTypes(fn Handler, types ...Type) SubscriberID {
	filter := make(map[Type]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return b.add(subscriber{fn: fn, filter: filter})
}

func (b *Bus) add(s subscriber) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s.id = b.nextID
	b.subscribers = append(b.subscribers, s)
	return s.id
}

func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Emit is a no-op on a nil Bus.
func (b *Bus) Emit(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil {
			if _, ok := s.filter[evt.Type]; !ok {
				continue
			}
		}
		s.fn(evt)
	}
}
