// Package location provides Firebase-backed adaptive driver tracking and
// push notifications for delivery status changes.
package location

import (
	"context"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"

	"dropoff/internal/events"
	"dropoff/internal/types"
)

const (
	trackIntervalSlow   = 2 * time.Second
	trackIntervalNormal = 5 * time.Second
	trackIntervalFast   = 10 * time.Second

	// Below this speed (m/s) a driver is likely pulling up to a waypoint.
	slowSpeed = 3.0
	fastSpeed = 15.0

	notifyTimeout = 5 * time.Second
)

// FirebaseService reads the driver app's RTDB position feed and sends FCM
// messages. A nil *FirebaseService is valid and reports itself unavailable.
type FirebaseService struct {
	app       *firebase.App
	dbClient  *db.Client
	msgClient *messaging.Client
}

// NewFirebaseService wraps an initialised Admin SDK app. RTDB tracking is
// enabled only when the app was configured with a database URL.
func NewFirebaseService(ctx context.Context, app *firebase.App, rtdb bool) (*FirebaseService, error) {
	svc := &FirebaseService{app: app}
	var err error
	if rtdb {
		if svc.dbClient, err = app.Database(ctx); err != nil {
			return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
		}
	}
	if svc.msgClient, err = app.Messaging(ctx); err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return svc, nil
}

// rtdbDriverEntry mirrors the entry the driver app writes under
// /driver_locations/{driverID}.
type rtdbDriverEntry struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Accuracy  float64  `json:"accuracy"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
	Timestamp int64    `json:"timestamp"`
}

func (e rtdbDriverEntry) geoPoint() GeoPoint {
	return GeoPoint{
		Lat:       e.Lat,
		Lng:       e.Lng,
		Accuracy:  e.Accuracy,
		Speed:     e.Speed,
		Heading:   e.Heading,
		Timestamp: time.UnixMilli(e.Timestamp).UTC(),
	}
}

// adaptiveInterval polls faster as the driver slows down.
func adaptiveInterval(speed *float64) time.Duration {
	switch {
	case speed == nil:
		return trackIntervalNormal
	case *speed < slowSpeed:
		return trackIntervalSlow
	case *speed > fastSpeed:
		return trackIntervalFast
	default:
		return trackIntervalNormal
	}
}

// Track streams the driver's RTDB position at a speed-dependent rate until
// ctx is done. Unchanged entries are not re-sent.
func (s *FirebaseService) Track(ctx context.Context, driverID types.ID) (<-chan GeoPoint, error) {
	if s == nil || s.dbClient == nil {
		return nil, ErrAdaptiveUnavailable
	}
	ref := s.dbClient.NewRef("driver_locations/" + string(driverID))

	var first rtdbDriverEntry
	if err := ref.Get(ctx, &first); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdaptiveUnavailable, err)
	}

	out := make(chan GeoPoint, 1)
	go func() {
		defer close(out)
		entry := first
		var lastTS int64
		for {
			if entry.Timestamp != 0 && entry.Timestamp != lastTS {
				lastTS = entry.Timestamp
				select {
				case out <- entry.geoPoint():
				case <-ctx.Done():
					return
				}
			}
			timer := time.NewTimer(adaptiveInterval(entry.Speed))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			var next rtdbDriverEntry
			if err := ref.Get(ctx, &next); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("rtdb read for driver %s: %v", driverID, err)
				continue
			}
			entry = next
		}
	}()
	return out, nil
}

func driverTopic(id types.ID) string {
	return "driver_" + string(id)
}

var transitionTitles = map[string]string{
	"assigned":            "Delivery assigned",
	"arrived_at_vendor":   "Arrived at pickup",
	"arrived_at_customer": "Arrived at drop-off",
	"delivered":           "Delivery complete",
	"cancelled":           "Delivery cancelled",
}

// NotifyTransition pushes a status change to the driver's topic. Statuses
// without a title are not pushed.
func (s *FirebaseService) NotifyTransition(ctx context.Context, e events.Event) error {
	if s == nil || s.msgClient == nil {
		return nil
	}
	title, ok := transitionTitles[e.To]
	if !ok || e.DriverID == "" {
		return nil
	}

	msg := &messaging.Message{
		Topic: driverTopic(e.DriverID),
		Data: map[string]string{
			"type":     "order_status",
			"order_id": string(e.OrderID),
			"from":     e.From,
			"to":       e.To,
			"actor":    e.Actor,
		},
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("Order %s is now %s", string(e.OrderID), e.To),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	messageID, err := s.msgClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM for order %s: %w", string(e.OrderID), err)
	}

	log.Printf("FCM sent for order %s, message_id=%s", string(e.OrderID), messageID)
	return nil
}

// OnTransition is an events.Handler; the send runs off the emitting goroutine.
func (s *FirebaseService) OnTransition(e events.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.NotifyTransition(ctx, e); err != nil {
			log.Printf("notify transition: %v", err)
		}
	}()
}
