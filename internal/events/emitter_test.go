package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubpay/pkg/platform/outbox"
	"clubpay/pkg/requestcontext"
)

func TestEmitter_WritesFlatEnvelope(t *testing.T) {
	store := outbox.NewInMemoryStore()
	emitter := NewEmitter(store)
	paidAt := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), paidAt)

	err := emitter.Emit(ctx, DonationCompletedEvent{
		SessionID:  "cs_1",
		DonorEmail: "ana@x.com",
		DonorName:  "Ana",
		Amount:     500,
		Currency:   "ron",
		PaidAt:     paidAt,
	})
	require.NoError(t, err)

	entries := store.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, RoutingKeyDonationCompleted, e.RoutingKey)
	assert.Equal(t, "donation", e.AggregateType)
	assert.Equal(t, "cs_1", e.AggregateID)
	assert.Equal(t, paidAt, e.CreatedAt)
	assert.JSONEq(t, `{
		"session_id":"cs_1","donor_email":"ana@x.com","donor_name":"Ana",
		"amount":500,"currency":"ron","message":"","paid_at":"2026-04-01T09:30:00Z"
	}`, string(e.Payload))

	decoded, err := Decode[DonationCompletedEvent](e.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(500), decoded.Amount)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode[AdminBroadcastEvent]([]byte("not json"))
	assert.Error(t, err)
}

func TestEmitter_RejectsOversizedPayload(t *testing.T) {
	store := outbox.NewInMemoryStore()
	emitter := NewEmitter(store, WithMaxPayloadBytes(256))

	err := emitter.Emit(context.Background(), AdminBroadcastEvent{
		BroadcastID: "b1",
		Subject:     "Season opener",
		Body:        strings.Repeat("x", 512),
	})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, store.Entries())

	require.NoError(t, emitter.Emit(context.Background(), AdminBroadcastEvent{BroadcastID: "b2", Subject: "s", Body: "short"}))
	assert.Len(t, store.Entries(), 1)
}
