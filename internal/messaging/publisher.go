// README: Kafka publisher for order events, fed from the in-process bus through a bounded outbox.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"dropoff/internal/events"
)

var ErrOutboxFull = errors.New("messaging: outbox full")

type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers    []string
	Topic      string
	Source     string
	OutboxSize int
	MaxRetries int
	RetryDelay time.Duration
}

// Publisher queues events without blocking the emitter and writes them to
// Kafka from Run. Messages are keyed by order id so one order's events stay
// on one partition in order.
type Publisher struct {
	writer Writer
	cfg    Config
	outbox chan events.Event
	log    Logger
}

// NewPublisher builds a kafka-go writer for cfg.Brokers.
func NewPublisher(cfg Config, log Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w, cfg, log), nil
}

func NewPublisherWithWriter(w Writer, cfg Config, log Logger) *Publisher {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "dropoff"
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Publisher{
		writer: w,
		cfg:    cfg,
		outbox: make(chan events.Event, cfg.OutboxSize),
		log:    log,
	}
}

// Enqueue never blocks; a full outbox drops the event.
func (p *Publisher) Enqueue(e events.Event) error {
	select {
	case p.outbox <- e:
		return nil
	default:
		return ErrOutboxFull
	}
}

// HandleEvent is an events.Handler.
func (p *Publisher) HandleEvent(e events.Event) {
	if err := p.Enqueue(e); err != nil {
		p.log.Errorf("drop %s for order %s: %v", e.Type, e.OrderID, err)
	}
}

// Run drains the outbox until ctx is done, then flushes what is left with a
// short grace period.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return nil
		case e := <-p.outbox:
			p.send(ctx, e)
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-p.outbox:
			p.send(ctx, e)
		default:
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, e events.Event) {
	data, err := NewEnvelope(p.cfg.Source, e).Encode()
	if err != nil {
		p.log.Errorf("encode %s for order %s: %v", e.Type, e.OrderID, err)
		return
	}
	msg := kafka.Message{
		Topic: p.cfg.Topic,
		Key:   []byte(e.OrderID),
		Value: data,
		Time:  e.Timestamp,
	}

	for attempt := 0; ; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return
		}
		if attempt >= p.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(p.cfg.RetryDelay):
		}
	}
	p.log.Errorf("publish %s for order %s to %s: %v", e.Type, e.OrderID, p.cfg.Topic, err)
}

func (p *Publisher) Pending() int {
	return len(p.outbox)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
