package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"homehub-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewSubscriber(url string) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js}, nil
}

// Subscribe registers a handler for a subject such as
// Subject("RESEARCH_RUN_FINISHED") or "events.>". An empty durableName creates an ephemeral consumer
// that only sees new messages. Call Stop on the result to end consumption.
func (s *Subscriber) Subscribe(ctx context.Context, subject string, durableName string, handler EventHandler) (jetstream.ConsumeContext, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	var (
		consumer jetstream.Consumer
		err      error
	)
	if durableName == "" {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
		consumer, err = s.js.CreateConsumer(ctx, StreamName, cfg)
	} else {
		consumer, err = s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg.Subject(), msg.Data())
		if err != nil {
			log.Printf("[WARN] Dropping undecodable event on %s: %v", msg.Subject(), err)
			_ = msg.Term()
			return
		}

		if err := handler(ctx, event); err != nil {
			log.Printf("Handler failed for event %s: %v", msg.Subject(), err)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Printf("Subscribed to %s (durable=%q)", subject, durableName)
	return cc, nil
}

func decodeEvent(subject string, data []byte) (events.BaseEvent, error) {
	var envelope struct {
		Type       string                 `json:"type"`
		OccurredAt time.Time              `json:"occurred_at"`
		Data       map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return events.BaseEvent{}, err
	}
	if envelope.Type == "" {
		envelope.Type = strings.TrimPrefix(subject, subjectPrefix)
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now()
	}
	return events.BaseEvent{Type: envelope.Type, Data: envelope.Data, OccurredAt: envelope.OccurredAt}, nil
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
