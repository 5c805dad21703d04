// Package webhook ingests payment-provider callbacks: it authenticates them,
// keeps the raw payload for replay and dispatches each event to exactly one
// ledger operation.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v74"

	"clubpay/internal/payments/ledger"
	"clubpay/internal/payments/models"
)

// Flow identifies which checkout family a webhook endpoint serves. Each flow
// has its own signing secret.
type Flow string

const (
	FlowDonations     Flow = "donations"
	FlowSubscriptions Flow = "subscriptions"
)

func (f Flow) IsValid() bool {
	return f == FlowDonations || f == FlowSubscriptions
}

// Event types the router acts on.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncPaymentPassed = "checkout.session.async_payment_succeeded"
	EventInvoicePaid                = "invoice.paid"
	EventInvoicePaymentSucceeded    = "invoice.payment_succeeded"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
	EventSubscriptionUpdated        = "customer.subscription.updated"
	EventSubscriptionDeleted        = "customer.subscription.deleted"
)

// Ledger is the subset of the payment ledger the router drives.
type Ledger interface {
	MarkPaidFromSession(ctx context.Context, p models.SessionPayment) (ledger.Outcome, error)
	UpsertSubscriptionFromCheckout(ctx context.Context, c models.SubscriptionCheckout) (ledger.Outcome, error)
	RecordInvoicePaid(ctx context.Context, inv models.InvoicePayment) (ledger.Outcome, error)
	MarkPaymentFailed(ctx context.Context, inv models.InvoicePayment) (ledger.Outcome, error)
	SyncSubscriptionStatus(ctx context.Context, u models.SubscriptionUpdate) (ledger.Outcome, error)
	MarkCanceled(ctx context.Context, subscriptionID string, canceledAt *time.Time) (ledger.Outcome, error)
}

// Result is the router's verdict for one event.
type Result string

const (
	ResultProcessed Result = "processed"
	ResultIgnored   Result = "ignored"
)

// Router maps event types to ledger operations.
type Router struct {
	ledger Ledger
	plans  map[string]string // price id -> plan code
	logger *slog.Logger
}

// NewRouter builds a router. planPrices maps plan codes to price ids, as in
// configuration; it is inverted to resolve plans from invoice lines.
func NewRouter(l Ledger, planPrices map[string]string, logger *slog.Logger) *Router {
	plans := make(map[string]string, len(planPrices))
	for code, price := range planPrices {
		plans[price] = code
	}
	return &Router{ledger: l, plans: plans, logger: logger}
}

// Dispatch applies ev to the ledger. Unknown types, and known types that do
// not belong to flow, are ignored: the donations endpoint only handles
// checkout sessions.
func (r *Router) Dispatch(ctx context.Context, flow Flow, ev stripe.Event) (Result, error) {
	eventType := string(ev.Type)
	if flow == FlowDonations && !isCheckoutEvent(eventType) {
		if isSubscriptionEvent(eventType) {
			r.logger.InfoContext(ctx, "subscription event on donations endpoint ignored",
				"event_id", ev.ID,
				"event_type", eventType,
			)
		}
		return ResultIgnored, nil
	}
	switch eventType {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentPassed:
		s, err := decodeObject[stripe.CheckoutSession](ev)
		if err != nil {
			return "", err
		}
		if flow == FlowSubscriptions {
			if eventType != EventCheckoutCompleted {
				return ResultIgnored, nil
			}
			return processed(r.ledger.UpsertSubscriptionFromCheckout(ctx, subscriptionCheckout(s)))
		}
		if s.Mode == stripe.CheckoutSessionModeSubscription {
			return ResultIgnored, nil
		}
		return processed(r.ledger.MarkPaidFromSession(ctx, sessionPayment(s)))

	case EventInvoicePaid, EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		inv, err := decodeObject[stripe.Invoice](ev)
		if err != nil {
			return "", err
		}
		p := invoicePayment(inv, r.plans)
		p.OccurredAt = eventTime(ev)
		if p.SubscriptionID == "" {
			r.logger.InfoContext(ctx, "invoice without subscription ignored",
				"event_id", ev.ID,
				"invoice_id", p.InvoiceID,
			)
			return ResultIgnored, nil
		}
		if eventType == EventInvoicePaymentFailed {
			return processed(r.ledger.MarkPaymentFailed(ctx, p))
		}
		return processed(r.ledger.RecordInvoicePaid(ctx, p))

	case EventSubscriptionUpdated:
		sub, err := decodeObject[stripe.Subscription](ev)
		if err != nil {
			return "", err
		}
		u := subscriptionUpdate(sub)
		u.OccurredAt = eventTime(ev)
		return processed(r.ledger.SyncSubscriptionStatus(ctx, u))

	case EventSubscriptionDeleted:
		sub, err := decodeObject[stripe.Subscription](ev)
		if err != nil {
			return "", err
		}
		u := subscriptionUpdate(sub)
		return processed(r.ledger.MarkCanceled(ctx, u.SubscriptionID, u.CanceledAt))

	default:
		return ResultIgnored, nil
	}
}

func isCheckoutEvent(eventType string) bool {
	return eventType == EventCheckoutCompleted || eventType == EventCheckoutAsyncPaymentPassed
}

func isSubscriptionEvent(eventType string) bool {
	switch eventType {
	case EventInvoicePaid, EventInvoicePaymentSucceeded, EventInvoicePaymentFailed,
		EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

func processed(_ ledger.Outcome, err error) (Result, error) {
	if err != nil {
		return "", fmt.Errorf("ledger: %w", err)
	}
	return ResultProcessed, nil
}
