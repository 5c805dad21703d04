// Package broker carries domain events from the outbox to notification
// consumers. Delivery is at-least-once: consumers must tolerate redelivery.
package broker

import (
	"context"
	"time"
)

// Header names carried on every message.
const (
	HeaderMessageID  = "message-id"
	HeaderRoutingKey = "routing-key"
	HeaderAttempt    = "attempt"
	HeaderLastError  = "last-error"
)

// Message is one published event. ID is stable across redeliveries and is
// what consumers deduplicate on.
type Message struct {
	ID         string
	RoutingKey string
	Key        string
	Payload    []byte
	Headers    map[string]string
	Timestamp  time.Time
	Attempt    int
}

type Publisher interface {
	// Publish returns once the broker has durably accepted the message.
	Publish(ctx context.Context, msg Message) error
}

type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Broker publishes and runs queue consumers. Subscribe must be called
// before Run.
type Broker interface {
	Publisher
	Subscribe(queue string, h Handler) error
	Run(ctx context.Context) error
	Close() error
}
