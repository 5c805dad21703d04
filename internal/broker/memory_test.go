package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubpay/pkg/platform/outbox"
)

func newTestBroker(t *testing.T, policy RetryPolicy) *MemoryBroker {
	t.Helper()
	return NewMemory(DefaultTopology(),
		WithRetryPolicy(policy),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
}

func TestMemoryBroker_RoutesToBoundQueues(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 1})
	ctx := context.Background()

	var donations, contacts []Message
	require.NoError(t, b.Subscribe("notifications.donations", HandlerFunc(func(_ context.Context, m Message) error {
		donations = append(donations, m)
		return nil
	})))
	require.NoError(t, b.Subscribe("notifications.contact", HandlerFunc(func(_ context.Context, m Message) error {
		contacts = append(contacts, m)
		return nil
	})))

	require.NoError(t, b.Publish(ctx, Message{ID: "m1", RoutingKey: "donation.completed", Payload: []byte(`{}`)}))
	assert.Equal(t, 1, b.DeliverPending(ctx))

	require.Len(t, donations, 1)
	assert.Equal(t, "m1", donations[0].ID)
	assert.Equal(t, 1, donations[0].Attempt)
	assert.Empty(t, contacts)
}

func TestMemoryBroker_UndeclaredRoutingKey(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 1})
	err := b.Publish(context.Background(), Message{ID: "m1", RoutingKey: "team.created"})
	require.Error(t, err)
}

func TestMemoryBroker_RetriesThenDeadLetters(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 3})
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, b.Subscribe("notifications.contact", HandlerFunc(func(context.Context, Message) error {
		calls.Add(1)
		return errors.New("smtp down")
	})))
	require.NoError(t, b.Publish(ctx, Message{ID: "m1", RoutingKey: "contact.message"}))

	b.DeliverPending(ctx)

	assert.Equal(t, int32(3), calls.Load())
	dead := b.DeadLetters("notifications.contact")
	require.Len(t, dead, 1)
	assert.Equal(t, "smtp down", dead[0].Headers[HeaderLastError])
	assert.Zero(t, b.Pending("notifications.contact"))
}

func TestMemoryBroker_RetrySucceeds(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 3})
	ctx := context.Background()

	var attempts []int
	require.NoError(t, b.Subscribe("notifications.contact", HandlerFunc(func(_ context.Context, m Message) error {
		attempts = append(attempts, m.Attempt)
		if m.Attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})))
	require.NoError(t, b.Publish(ctx, Message{ID: "m1", RoutingKey: "contact.message"}))
	b.DeliverPending(ctx)

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Empty(t, b.DeadLetters("notifications.contact"))
}

func TestMemoryBroker_PermanentErrorSkipsRetries(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 5})
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, b.Subscribe("notifications.contact", HandlerFunc(func(context.Context, Message) error {
		calls.Add(1)
		return Permanent(errors.New("malformed payload"))
	})))
	require.NoError(t, b.Publish(ctx, Message{ID: "m1", RoutingKey: "contact.message"}))
	b.DeliverPending(ctx)

	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, b.DeadLetters("notifications.contact"), 1)
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(errors.New("x")))))
	assert.NoError(t, Permanent(nil))
}

func TestMemoryBroker_SubscribeErrors(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 1})
	noop := HandlerFunc(func(context.Context, Message) error { return nil })

	require.Error(t, b.Subscribe("notifications.unknown", noop))
	require.NoError(t, b.Subscribe("notifications.contact", noop))
	require.Error(t, b.Subscribe("notifications.contact", noop))
}

func TestMemoryBroker_RunDeliversAsync(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 1)
	require.NoError(t, b.Subscribe("notifications.broadcasts", HandlerFunc(func(_ context.Context, m Message) error {
		got <- m
		return nil
	})))
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	require.NoError(t, b.Publish(ctx, Message{ID: "b1", RoutingKey: "admin.broadcast"}))
	select {
	case m := <-got:
		assert.Equal(t, "b1", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
	cancel()
	<-done
}

func TestRouter_DispatchesByRoutingKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := NewRouter(logger, nil)

	var handled string
	r.Register("subscription.payment.completed", HandlerFunc(func(_ context.Context, m Message) error {
		handled = m.ID
		return nil
	}))

	require.NoError(t, r.Handle(context.Background(), Message{ID: "m1", RoutingKey: "subscription.payment.completed"}))
	assert.Equal(t, "m1", handled)

	// Unknown keys are acknowledged, not retried.
	require.NoError(t, r.Handle(context.Background(), Message{ID: "m2", RoutingKey: "subscription.payment.refunded"}))
	assert.Equal(t, "m1", handled)
}

func TestOutboxPublisher_CarriesEntryID(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 1})
	ctx := context.Background()

	var got Message
	require.NoError(t, b.Subscribe("notifications.donations", HandlerFunc(func(_ context.Context, m Message) error {
		got = m
		return nil
	})))

	id := uuid.New()
	publish := OutboxPublisher(b)
	require.NoError(t, publish(ctx, outbox.Entry{
		ID:            id,
		AggregateType: "donation",
		AggregateID:   "cs_1",
		RoutingKey:    "donation.completed",
		Payload:       []byte(`{"session_id":"cs_1"}`),
	}))
	b.DeliverPending(ctx)

	assert.Equal(t, id.String(), got.ID)
	assert.Equal(t, "cs_1", got.Key)
	assert.Equal(t, "donation", got.Headers["aggregate-type"])
}

func TestOutboxPublisher_ParksUndeclaredRoutingKey(t *testing.T) {
	b := newTestBroker(t, RetryPolicy{MaxAttempts: 1})
	publish := OutboxPublisher(b)

	err := publish(context.Background(), outbox.Entry{ID: uuid.New(), RoutingKey: "nobody.listens", Payload: []byte(`{}`)})
	require.Error(t, err)
	assert.True(t, outbox.IsParked(err))

	require.NoError(t, publish(context.Background(), outbox.Entry{ID: uuid.New(), RoutingKey: "contact.message", Payload: []byte(`{}`)}))
}
