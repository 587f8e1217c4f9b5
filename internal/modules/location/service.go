// README: Location service ingests driver fixes and fans them out to live subscribers.
package location

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"dropoff/internal/types"
)

const subscriberBuffer = 8

type Service struct {
	store *Store

	snapshotEvery time.Duration

	mu            sync.Mutex
	subs          map[types.ID]map[*subscription]struct{}
	lastSnapshots map[types.ID]time.Time
}

type subscription struct {
	ch      chan GeoPoint
	minMove float64
	last    *GeoPoint
}

// NewService persists a snapshot at most once per snapshotEvery per driver;
// zero disables snapshots.
func NewService(store *Store, snapshotEvery time.Duration) *Service {
	return &Service{
		store:         store,
		snapshotEvery: snapshotEvery,
		subs:          make(map[types.ID]map[*subscription]struct{}),
		lastSnapshots: make(map[types.ID]time.Time),
	}
}

type Update struct {
	DriverID types.ID
	Position GeoPoint
}

// Update records the driver's latest fix and forwards it to subscribers.
func (s *Service) Update(ctx context.Context, u Update) error {
	p := u.Position
	if u.DriverID == "" || !p.Valid() || math.IsNaN(p.Accuracy) || p.Accuracy < 0 {
		return ErrInvalidPoint
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	if err := s.store.SetLatest(ctx, u.DriverID, p); err != nil {
		return err
	}
	s.publish(u.DriverID, p)

	if s.dueSnapshot(u.DriverID, p.Timestamp) {
		if err := s.FlushSnapshot(ctx, u.DriverID, p); err != nil {
			log.Printf("location snapshot for driver %s: %v", u.DriverID, err)
		}
	}
	return nil
}

func (s *Service) FlushSnapshot(ctx context.Context, driverID types.ID, p GeoPoint) error {
	snap := Snapshot{
		DriverID:   driverID,
		Position:   p,
		RecordedAt: p.Timestamp,
	}
	return s.store.AppendSnapshot(ctx, snap)
}

func (s *Service) dueSnapshot(driverID types.ID, at time.Time) bool {
	if s.snapshotEvery <= 0 || !s.store.HasSnapshots() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSnapshots[driverID]; ok && at.Sub(last) < s.snapshotEvery {
		return false
	}
	s.lastSnapshots[driverID] = at
	return true
}

// CurrentPosition returns the driver's most recent fix.
func (s *Service) CurrentPosition(ctx context.Context, driverID types.ID) (GeoPoint, error) {
	return s.store.Latest(ctx, driverID)
}

// Forget drops the driver's live position.
func (s *Service) Forget(ctx context.Context, driverID types.ID) error {
	s.mu.Lock()
	delete(s.lastSnapshots, driverID)
	s.mu.Unlock()
	return s.store.Remove(ctx, driverID)
}

// Subscribe streams fixes for driverID that moved at least minMoveMeters from
// the previously delivered one. The channel closes when ctx is done. Slow
// readers miss fixes rather than blocking ingestion.
func (s *Service) Subscribe(ctx context.Context, driverID types.ID, minMoveMeters float64) (<-chan GeoPoint, error) {
	sub := &subscription{
		ch:      make(chan GeoPoint, subscriberBuffer),
		minMove: minMoveMeters,
	}
	s.mu.Lock()
	set, ok := s.subs[driverID]
	if !ok {
		set = make(map[*subscription]struct{})
		s.subs[driverID] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[driverID], sub)
		if len(s.subs[driverID]) == 0 {
			delete(s.subs, driverID)
		}
		close(sub.ch)
	}()
	return sub.ch, nil
}

func (s *Service) publish(driverID types.ID, p GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[driverID] {
		if sub.last != nil && DistanceMeters(sub.last.Point(), p.Point()) < sub.minMove {
			continue
		}
		select {
		case sub.ch <- p:
			last := p
			sub.last = &last
		default:
		}
	}
}
