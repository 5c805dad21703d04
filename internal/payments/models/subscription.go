package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "clubpay/pkg/domain-errors"
)

// Subscription is a recurring supporter plan.
//
// Invariants:
//   - SubscriptionID, once known, is unique
//   - CheckoutSessionID, when set, is unique
//   - CANCELED is terminal; nothing moves a subscription out of it
//   - ProviderUpdatedAt only moves forward; status changes from provider
//     events older than it are not applied
type Subscription struct {
	ID                uuid.UUID          `json:"id"`
	CheckoutSessionID string             `json:"checkout_session_id,omitempty"`
	SubscriptionID    string             `json:"subscription_id,omitempty"`
	CustomerID        string             `json:"customer_id,omitempty"`
	PriceID           string             `json:"price_id,omitempty"`
	PlanCode          string             `json:"plan_code,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	SupporterEmail    string             `json:"supporter_email,omitempty"`
	SupporterName     string             `json:"supporter_name,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	CanceledAt        *time.Time         `json:"canceled_at,omitempty"`
	ProviderUpdatedAt *time.Time         `json:"provider_updated_at,omitempty"`
}

// Supporter is the customer side of a subscription.
type Supporter struct {
	CustomerID string
	Email      string
	Name       string
}

// SubscriptionCheckout is the provider's view of a completed subscription checkout.
type SubscriptionCheckout struct {
	SessionID      string
	SubscriptionID string
	PriceID        string
	PlanCode       string
	Supporter      Supporter
}

// InvoicePayment is the provider's view of a paid or failed invoice.
// OccurredAt is when the provider created the event, zero when unknown.
type InvoicePayment struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	AmountPaid      int64
	Currency        string
	Paid            bool
	PaidAt          time.Time
	PriceID         string
	PlanCode        string
	Supporter       Supporter
	OccurredAt      time.Time
}

// SubscriptionUpdate is the provider's view of a subscription status change.
type SubscriptionUpdate struct {
	SubscriptionID string
	Status         string
	CustomerID     string
	PriceID        string
	CanceledAt     *time.Time
	OccurredAt     time.Time
}

func NewSubscription(now time.Time) *Subscription {
	return &Subscription{
		ID:        uuid.New(),
		Status:    SubscriptionStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPendingSubscription records a subscription checkout before the provider
// has assigned a subscription id.
func NewPendingSubscription(sessionID, planCode, priceID string, supporter Supporter, now time.Time) (*Subscription, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subscription checkout session id cannot be empty")
	}
	s := NewSubscription(now)
	s.CheckoutSessionID = sessionID
	s.PlanCode = planCode
	s.PriceID = priceID
	s.RefreshSupporter(supporter)
	return s, nil
}

func (s *Subscription) IsCanceled() bool {
	return s.Status == SubscriptionStatusCanceled
}

// RefreshSupporter overwrites customer fields with any non-empty values.
func (s *Subscription) RefreshSupporter(sp Supporter) {
	if sp.CustomerID != "" {
		s.CustomerID = sp.CustomerID
	}
	if e := strings.TrimSpace(sp.Email); e != "" {
		s.SupporterEmail = e
	}
	if n := strings.TrimSpace(sp.Name); n != "" {
		s.SupporterName = n
	}
}

// RefreshPlan fills price and plan codes that are still unknown.
func (s *Subscription) RefreshPlan(priceID, planCode string) {
	if s.PriceID == "" && priceID != "" {
		s.PriceID = priceID
	}
	if s.PlanCode == "" && planCode != "" {
		s.PlanCode = planCode
	}
}

// CanTransition checks whether the state machine allows moving to next.
func (s *Subscription) CanTransition(next SubscriptionStatus) error {
	if s.Status == next {
		return dErrors.New(dErrors.CodeInvariantViolation, "subscription is already "+string(next))
	}
	if !s.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"subscription cannot move from "+string(s.Status)+" to "+string(next))
	}
	return nil
}

// ApplyTransition moves the subscription to next.
// Must only be called after CanTransition returns nil.
func (s *Subscription) ApplyTransition(next SubscriptionStatus, now time.Time) {
	s.Status = next
	s.UpdatedAt = now
	if next == SubscriptionStatusCanceled && s.CanceledAt == nil {
		at := now
		s.CanceledAt = &at
	}
}

// TransitionTo validates and applies a transition in one call. It returns
// false without error when the move is not allowed, since provider callbacks
// routinely arrive late or repeated.
func (s *Subscription) TransitionTo(next SubscriptionStatus, now time.Time) bool {
	if err := s.CanTransition(next); err != nil {
		return false
	}
	s.ApplyTransition(next, now)
	return true
}

// IsStale reports whether a provider event created at is older than the
// newest one already applied. Unknown times are never stale.
func (s *Subscription) IsStale(at time.Time) bool {
	return !at.IsZero() && s.ProviderUpdatedAt != nil && at.Before(*s.ProviderUpdatedAt)
}

// ObserveProviderEvent advances ProviderUpdatedAt to at when it is newer and
// reports whether it moved.
func (s *Subscription) ObserveProviderEvent(at time.Time) bool {
	if at.IsZero() || (s.ProviderUpdatedAt != nil && !at.After(*s.ProviderUpdatedAt)) {
		return false
	}
	at = at.UTC()
	s.ProviderUpdatedAt = &at
	return true
}
