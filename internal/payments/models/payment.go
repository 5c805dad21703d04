package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "clubpay/pkg/domain-errors"
)

// SubscriptionPayment is one paid invoice. InvoiceID is unique.
type SubscriptionPayment struct {
	InvoiceID       string    `json:"invoice_id"`
	SubscriptionRef uuid.UUID `json:"subscription_ref"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	AmountPaid      int64     `json:"amount_paid"`
	Currency        string    `json:"currency"`
	PaidAt          time.Time `json:"paid_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewSubscriptionPayment(sub *Subscription, inv InvoicePayment, now time.Time) (*SubscriptionPayment, error) {
	if strings.TrimSpace(inv.InvoiceID) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invoice id cannot be empty")
	}
	if sub == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payment requires a subscription")
	}
	paidAt := inv.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	return &SubscriptionPayment{
		InvoiceID:       inv.InvoiceID,
		SubscriptionRef: sub.ID,
		PaymentIntentID: inv.PaymentIntentID,
		AmountPaid:      inv.AmountPaid,
		Currency:        NormalizeCurrency(inv.Currency),
		PaidAt:          paidAt,
		CreatedAt:       now,
	}, nil
}
