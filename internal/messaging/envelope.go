package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dropoff/internal/events"
)

// Envelope wraps an order event for the wire.
type Envelope struct {
	MsgType   string       `json:"msg_type"`
	MsgID     string       `json:"msg_id"`
	Source    string       `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   events.Event `json:"payload"`
}

// NewEnvelope stamps e with a fresh message id.
func NewEnvelope(source string, e events.Event) *Envelope {
	return &Envelope{
		MsgType:   string(e.Type),
		MsgID:     uuid.New().String(),
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   e,
	}
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch events.Type(env.MsgType) {
	case events.TypeOrderAccepted, events.TypeOrderTransition:
	default:
		return nil, fmt.Errorf("unknown msg_type: %s", env.MsgType)
	}
	if _, err := uuid.Parse(env.MsgID); err != nil {
		return nil, fmt.Errorf("invalid msg_id %q: %w", env.MsgID, err)
	}
	return &env, nil
}
