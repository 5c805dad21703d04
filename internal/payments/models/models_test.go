package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "clubpay/pkg/domain-errors"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestSubscriptionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to SubscriptionStatus
		allowed  bool
	}{
		{SubscriptionStatusCreated, SubscriptionStatusActive, true},
		{SubscriptionStatusCreated, SubscriptionStatusIncomplete, true},
		{SubscriptionStatusCreated, SubscriptionStatusPastDue, false},
		{SubscriptionStatusIncomplete, SubscriptionStatusActive, true},
		{SubscriptionStatusActive, SubscriptionStatusPastDue, true},
		{SubscriptionStatusActive, SubscriptionStatusUnpaid, true},
		{SubscriptionStatusActive, SubscriptionStatusCreated, false},
		{SubscriptionStatusPastDue, SubscriptionStatusActive, true},
		{SubscriptionStatusUnpaid, SubscriptionStatusActive, true},
		{SubscriptionStatusActive, SubscriptionStatusActive, false},
		{SubscriptionStatusCanceled, SubscriptionStatusActive, false},
		{SubscriptionStatusCanceled, SubscriptionStatusCreated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCanceledIsTerminal(t *testing.T) {
	sub := NewSubscription(now)
	require.True(t, sub.TransitionTo(SubscriptionStatusCanceled, now))
	require.NotNil(t, sub.CanceledAt)

	for status := range subscriptionTransitions {
		assert.False(t, sub.TransitionTo(status, now.Add(time.Hour)), "canceled moved to %s", status)
	}
	assert.Equal(t, SubscriptionStatusCanceled, sub.Status)
	assert.Equal(t, now, *sub.CanceledAt)
	assert.True(t, sub.Status.IsTerminal())
}

func TestSubscription_CanTransition(t *testing.T) {
	sub := NewSubscription(now)
	err := sub.CanTransition(SubscriptionStatusCreated)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	err = sub.CanTransition(SubscriptionStatusUnpaid)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	assert.NoError(t, sub.CanTransition(SubscriptionStatusActive))
}

func TestSubscriptionStatusFromProvider(t *testing.T) {
	tests := map[string]SubscriptionStatus{
		"active":             SubscriptionStatusActive,
		"trialing":           SubscriptionStatusActive,
		"past_due":           SubscriptionStatusPastDue,
		"unpaid":             SubscriptionStatusUnpaid,
		"incomplete":         SubscriptionStatusIncomplete,
		"incomplete_expired": SubscriptionStatusCanceled,
		" CANCELED ":         SubscriptionStatusCanceled,
	}
	for in, want := range tests {
		got, ok := SubscriptionStatusFromProvider(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := SubscriptionStatusFromProvider("paused")
	assert.False(t, ok)
}

func TestDonation_ApplyPayment(t *testing.T) {
	d, err := NewDonation("cs_1", 500, "RON", Donor{Email: "ana@x.com", Message: "Hai!"}, now)
	require.NoError(t, err)
	assert.Equal(t, DonationStatusCreated, d.Status)
	assert.Equal(t, "ron", d.Currency)

	paidAt := now.Add(time.Minute)
	applied := d.ApplyPayment(SessionPayment{
		SessionID:       "cs_1",
		PaymentIntentID: "pi_1",
		AmountTotal:     500,
		Currency:        "ron",
		Paid:            true,
		Donor:           Donor{Name: "Ana"},
	}, paidAt)
	require.True(t, applied)
	assert.Equal(t, DonationStatusPaid, d.Status)
	assert.Equal(t, int64(500), d.FinalAmount)
	assert.Equal(t, "pi_1", d.PaymentIntentID)
	assert.Equal(t, "Ana", d.DonorName)
	assert.Equal(t, "ana@x.com", d.DonorEmail)
	assert.Equal(t, "Hai!", d.DonorMessage)
	assert.Equal(t, paidAt, *d.PaidAt)

	t.Run("paid is terminal", func(t *testing.T) {
		applied := d.ApplyPayment(SessionPayment{AmountTotal: 9999, PaymentIntentID: "pi_other"}, paidAt.Add(time.Hour))
		assert.False(t, applied)
		assert.Equal(t, int64(500), d.FinalAmount)
		assert.Equal(t, "pi_1", d.PaymentIntentID)
		assert.Equal(t, paidAt, *d.PaidAt)
	})
}

func TestNewDonation_Invariants(t *testing.T) {
	_, err := NewDonation(" ", 100, "eur", Donor{}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	_, err = NewDonation("cs_2", -1, "eur", Donor{}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestNewSubscriptionPayment(t *testing.T) {
	sub := NewSubscription(now)
	p, err := NewSubscriptionPayment(sub, InvoicePayment{InvoiceID: "in_9", AmountPaid: 2500, Currency: "EUR"}, now)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, p.SubscriptionRef)
	assert.Equal(t, "eur", p.Currency)
	assert.Equal(t, now, p.PaidAt)

	_, err = NewSubscriptionPayment(sub, InvoicePayment{}, now)
	assert.Error(t, err)
}

func TestSubscription_ProviderEventOrdering(t *testing.T) {
	sub := NewSubscription(now)
	assert.False(t, sub.IsStale(now), "nothing observed yet")

	assert.True(t, sub.ObserveProviderEvent(now))
	assert.False(t, sub.ObserveProviderEvent(now), "same instant does not advance")
	assert.False(t, sub.ObserveProviderEvent(now.Add(-time.Second)))
	assert.False(t, sub.ObserveProviderEvent(time.Time{}))
	require.NotNil(t, sub.ProviderUpdatedAt)
	assert.Equal(t, now, *sub.ProviderUpdatedAt)

	assert.True(t, sub.IsStale(now.Add(-time.Second)))
	assert.False(t, sub.IsStale(now), "ties are applied")
	assert.False(t, sub.IsStale(time.Time{}), "unknown times are never stale")

	assert.True(t, sub.ObserveProviderEvent(now.Add(time.Minute)))
	assert.Equal(t, now.Add(time.Minute), *sub.ProviderUpdatedAt)
}
