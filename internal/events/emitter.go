package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clubpay/pkg/platform/outbox"
	"clubpay/pkg/requestcontext"
)

// Appender is the outbox write side.
type Appender interface {
	Append(ctx context.Context, entry outbox.Entry) error
}

// DefaultMaxPayloadBytes leaves headroom under a 1 MiB broker record limit.
const DefaultMaxPayloadBytes = 900 << 10

// ErrPayloadTooLarge means the serialised event exceeds the emitter's limit.
var ErrPayloadTooLarge = errors.New("event payload too large")

// Emitter serialises events into the outbox. Called inside a ledger
// transaction, the row commits or rolls back with the state change.
type Emitter struct {
	outbox     Appender
	maxPayload int
}

type EmitterOption func(*Emitter)

// WithMaxPayloadBytes rejects events whose payload is larger than n bytes.
func WithMaxPayloadBytes(n int) EmitterOption {
	return func(e *Emitter) {
		if n > 0 {
			e.maxPayload = n
		}
	}
}

func NewEmitter(outbox Appender, opts ...EmitterOption) *Emitter {
	e := &Emitter{outbox: outbox, maxPayload: DefaultMaxPayloadBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.RoutingKey(), err)
	}
	if len(payload) > e.maxPayload {
		return fmt.Errorf("%s event is %d bytes, limit %d: %w", ev.RoutingKey(), len(payload), e.maxPayload, ErrPayloadTooLarge)
	}
	err = e.outbox.Append(ctx, outbox.Entry{
		AggregateType: ev.AggregateType(),
		AggregateID:   ev.AggregateID(),
		RoutingKey:    ev.RoutingKey(),
		Payload:       payload,
		CreatedAt:     requestcontext.Now(ctx),
	})
	if err != nil {
		return fmt.Errorf("append %s event: %w", ev.RoutingKey(), err)
	}
	return nil
}
