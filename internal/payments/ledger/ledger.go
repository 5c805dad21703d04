// Package ledger records payment state idempotently. Every operation runs in one
// transaction, tolerates duplicate and out-of-order provider callbacks, and
// emits its domain event only when it actually changed state.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"clubpay/internal/events"
	paymetrics "clubpay/internal/payments/metrics"
	"clubpay/internal/payments/models"
	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/platform/sentinel"
	"clubpay/pkg/requestcontext"
)

// EventSink records domain events. It is called inside the ledger transaction.
type EventSink interface {
	Emit(ctx context.Context, ev events.Event) error
}

// Outcome describes what a call did. Applied reports that a row was created or
// changed; Transitioned reports the state change that triggers notification.
type Outcome struct {
	Applied      bool
	Transitioned bool
}

// Ledger orchestrates donation and subscription bookkeeping.
type Ledger struct {
	store   TxStore
	events  EventSink
	logger  *slog.Logger
	metrics *paymetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *paymetrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(store TxStore, sink EventSink, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		events: sink,
		logger: slog.Default(),
		tracer: otel.Tracer("clubpay/ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, store Store) (Outcome, error)) (Outcome, error) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var out Outcome
	err := l.store.RunInTx(ctx, func(txCtx context.Context, store Store) error {
		var err error
		out, err = fn(txCtx, store)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	span.SetAttributes(
		attribute.Bool("ledger.applied", out.Applied),
		attribute.Bool("ledger.transitioned", out.Transitioned),
	)
	if l.metrics != nil {
		l.metrics.ObserveLedger(op, start, out.Transitioned)
	}
	return out, nil
}

// RecordCreatedSession inserts a CREATED donation unless one exists for sessionID.
func (l *Ledger) RecordCreatedSession(ctx context.Context, sessionID string, intendedAmount int64, currency string, donor models.Donor) (Outcome, error) {
	return l.run(ctx, "record_created_session", []attribute.KeyValue{attribute.String("session_id", sessionID)},
		func(ctx context.Context, store Store) (Outcome, error) {
			d, err := models.NewDonation(sessionID, intendedAmount, currency, donor, requestcontext.Now(ctx))
			if err != nil {
				return Outcome{}, err
			}
			inserted, err := store.InsertDonation(ctx, d)
			if err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record donation session")
			}
			return Outcome{Applied: inserted, Transitioned: inserted}, nil
		})
}

// MarkPaidFromSession confirms a one-time payment. The donation is created if
// the checkout was never recorded. A session not yet paid only ensures the row
// exists; the asynchronous success callback completes it.
func (l *Ledger) MarkPaidFromSession(ctx context.Context, p models.SessionPayment) (Outcome, error) {
	return l.run(ctx, "mark_paid_from_session", []attribute.KeyValue{attribute.String("session_id", p.SessionID)},
		func(ctx context.Context, store Store) (Outcome, error) {
			now := requestcontext.Now(ctx)
			d, created, err := l.donationForUpdate(ctx, store, p, now)
			if err != nil {
				return Outcome{}, err
			}
			if !p.Paid {
				return Outcome{Applied: created}, nil
			}
			if !d.ApplyPayment(p, now) {
				return Outcome{Applied: created}, nil
			}
			if err := store.UpdateDonation(ctx, d); err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark donation paid")
			}
			err = l.events.Emit(ctx, events.DonationCompletedEvent{
				SessionID:  d.SessionID,
				DonorEmail: d.DonorEmail,
				DonorName:  d.DonorName,
				Amount:     d.FinalAmount,
				Currency:   d.Currency,
				Message:    d.DonorMessage,
				PaidAt:     *d.PaidAt,
			})
			if err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit donation completed")
			}
			l.logger.InfoContext(ctx, "donation paid",
				"session_id", d.SessionID,
				"amount", d.FinalAmount,
				"currency", d.Currency,
				"event_id", requestcontext.EventID(ctx),
			)
			return Outcome{Applied: true, Transitioned: true}, nil
		})
}

func (l *Ledger) donationForUpdate(ctx context.Context, store Store, p models.SessionPayment, now time.Time) (*models.Donation, bool, error) {
	d, err := store.FindDonation(ctx, p.SessionID)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donation")
	}
	fresh, err := models.NewDonation(p.SessionID, p.AmountTotal, p.Currency, p.Donor, now)
	if err != nil {
		return nil, false, err
	}
	inserted, err := store.InsertDonation(ctx, fresh)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create donation")
	}
	d, err = store.FindDonation(ctx, p.SessionID)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donation")
	}
	return d, inserted, nil
}

// RecordSubscriptionCheckout stores a CREATED subscription for a checkout
// session whose subscription id is not known yet.
func (l *Ledger) RecordSubscriptionCheckout(ctx context.Context, sessionID, planCode, priceID string, supporter models.Supporter) (Outcome, error) {
	return l.run(ctx, "record_subscription_checkout", []attribute.KeyValue{attribute.String("session_id", sessionID)},
		func(ctx context.Context, store Store) (Outcome, error) {
			sub, err := models.NewPendingSubscription(sessionID, planCode, priceID, supporter, requestcontext.Now(ctx))
			if err != nil {
				return Outcome{}, err
			}
			inserted, err := store.InsertSubscription(ctx, sub)
			if err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record subscription checkout")
			}
			return Outcome{Applied: inserted, Transitioned: inserted}, nil
		})
}

// UpsertSubscriptionFromCheckout links a completed subscription checkout to
// its subscription and refreshes customer fields. Status is never changed here.
//
// When an invoice arrived first, two rows may exist: one keyed by checkout
// session (created at checkout) and one keyed by subscription id (created by
// the invoice). The subscription-id row wins and inherits the plan; the
// session row is left as is.
func (l *Ledger) UpsertSubscriptionFromCheckout(ctx context.Context, c models.SubscriptionCheckout) (Outcome, error) {
	if c.SubscriptionID == "" && c.SessionID == "" {
		return Outcome{}, dErrors.New(dErrors.CodeValidation, "checkout has neither subscription nor session id")
	}
	return l.run(ctx, "upsert_subscription_from_checkout", []attribute.KeyValue{
		attribute.String("subscription_id", c.SubscriptionID),
		attribute.String("session_id", c.SessionID),
	}, func(ctx context.Context, store Store) (Outcome, error) {
		now := requestcontext.Now(ctx)
		byID, err := findOptional(store.FindSubscription(ctx, c.SubscriptionID))
		if err != nil {
			return Outcome{}, err
		}
		bySession, err := findOptional(store.FindSubscriptionByCheckoutSession(ctx, c.SessionID))
		if err != nil {
			return Outcome{}, err
		}

		var sub *models.Subscription
		created := false
		switch {
		case byID != nil:
			sub = byID
			if bySession != nil && bySession.ID != byID.ID {
				sub.RefreshPlan(bySession.PriceID, bySession.PlanCode)
			} else if sub.CheckoutSessionID == "" {
				sub.CheckoutSessionID = c.SessionID
			}
		case bySession != nil:
			sub = bySession
			if sub.SubscriptionID == "" {
				sub.SubscriptionID = c.SubscriptionID
			}
		default:
			fresh := models.NewSubscription(now)
			fresh.SubscriptionID = c.SubscriptionID
			fresh.CheckoutSessionID = c.SessionID
			if created, err = store.InsertSubscription(ctx, fresh); err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subscription")
			}
			if c.SubscriptionID != "" {
				sub, err = store.FindSubscription(ctx, c.SubscriptionID)
			} else {
				sub, err = store.FindSubscriptionByCheckoutSession(ctx, c.SessionID)
			}
			if err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
			}
		}

		sub.RefreshSupporter(c.Supporter)
		sub.RefreshPlan(c.PriceID, c.PlanCode)
		sub.UpdatedAt = now
		if err := store.UpdateSubscription(ctx, sub); err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subscription")
		}
		return Outcome{Applied: true, Transitioned: created}, nil
	})
}

// RecordInvoicePaid stores one payment per invoice and promotes the
// subscription to ACTIVE when the state machine allows it and no newer provider
// event has been applied. The payment event is emitted only when the payment
// row was inserted by this call.
func (l *Ledger) RecordInvoicePaid(ctx context.Context, inv models.InvoicePayment) (Outcome, error) {
	if inv.InvoiceID == "" {
		return Outcome{}, dErrors.New(dErrors.CodeValidation, "invoice id is required")
	}
	if inv.SubscriptionID == "" {
		return Outcome{}, dErrors.New(dErrors.CodeValidation, "invoice is not linked to a subscription")
	}
	return l.run(ctx, "record_invoice_paid", []attribute.KeyValue{
		attribute.String("invoice_id", inv.InvoiceID),
		attribute.String("subscription_id", inv.SubscriptionID),
	}, func(ctx context.Context, store Store) (Outcome, error) {
		exists, err := store.PaymentExists(ctx, inv.InvoiceID)
		if err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check invoice")
		}
		if exists {
			return Outcome{}, nil
		}

		now := requestcontext.Now(ctx)
		sub, _, err := l.subscriptionForUpdate(ctx, store, inv.SubscriptionID, now)
		if err != nil {
			return Outcome{}, err
		}

		payment, err := models.NewSubscriptionPayment(sub, inv, now)
		if err != nil {
			return Outcome{}, err
		}
		inserted, err := store.InsertPayment(ctx, payment)
		if err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record invoice payment")
		}
		if !inserted {
			return Outcome{}, nil
		}

		sub.RefreshSupporter(inv.Supporter)
		sub.RefreshPlan(inv.PriceID, inv.PlanCode)
		promoted := inv.Paid && !sub.IsStale(inv.OccurredAt) && sub.TransitionTo(models.SubscriptionStatusActive, now)
		sub.ObserveProviderEvent(inv.OccurredAt)
		sub.UpdatedAt = now
		if err := store.UpdateSubscription(ctx, sub); err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subscription")
		}

		err = l.events.Emit(ctx, events.SubscriptionPaymentCompletedEvent{
			SubscriptionID: sub.SubscriptionID,
			InvoiceID:      payment.InvoiceID,
			SupporterEmail: sub.SupporterEmail,
			SupporterName:  sub.SupporterName,
			PlanCode:       sub.PlanCode,
			Amount:         payment.AmountPaid,
			Currency:       payment.Currency,
			PaidAt:         payment.PaidAt,
		})
		if err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit subscription payment")
		}
		l.logger.InfoContext(ctx, "subscription payment recorded",
			"invoice_id", payment.InvoiceID,
			"subscription_id", sub.SubscriptionID,
			"status", sub.Status,
			"promoted", promoted,
			"event_id", requestcontext.EventID(ctx),
		)
		return Outcome{Applied: true, Transitioned: true}, nil
	})
}

func (l *Ledger) subscriptionForUpdate(ctx context.Context, store Store, subscriptionID string, now time.Time) (*models.Subscription, bool, error) {
	sub, err := store.FindSubscription(ctx, subscriptionID)
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
	}
	fresh := models.NewSubscription(now)
	fresh.SubscriptionID = subscriptionID
	inserted, err := store.InsertSubscription(ctx, fresh)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subscription")
	}
	sub, err = store.FindSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
	}
	return sub, inserted, nil
}

// MarkCanceled cancels a known subscription. Unknown ids are a no-op.
func (l *Ledger) MarkCanceled(ctx context.Context, subscriptionID string, canceledAt *time.Time) (Outcome, error) {
	return l.run(ctx, "mark_canceled", []attribute.KeyValue{attribute.String("subscription_id", subscriptionID)},
		func(ctx context.Context, store Store) (Outcome, error) {
			sub, err := findOptional(store.FindSubscription(ctx, subscriptionID))
			if err != nil || sub == nil {
				return Outcome{}, err
			}
			now := requestcontext.Now(ctx)
			if !sub.TransitionTo(models.SubscriptionStatusCanceled, now) {
				return Outcome{}, nil
			}
			if canceledAt != nil {
				at := *canceledAt
				sub.CanceledAt = &at
			}
			if err := store.UpdateSubscription(ctx, sub); err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel subscription")
			}
			l.logger.InfoContext(ctx, "subscription canceled",
				"subscription_id", subscriptionID,
				"event_id", requestcontext.EventID(ctx),
			)
			return Outcome{Applied: true, Transitioned: true}, nil
		})
}

// MarkPaymentFailed moves ACTIVE subscriptions to PAST_DUE and CREATED ones to
// INCOMPLETE. A failure for an invoice already recorded as paid, or one older
// than the newest applied provider event, is stale and ignored.
func (l *Ledger) MarkPaymentFailed(ctx context.Context, inv models.InvoicePayment) (Outcome, error) {
	if inv.SubscriptionID == "" {
		return Outcome{}, dErrors.New(dErrors.CodeValidation, "invoice is not linked to a subscription")
	}
	return l.run(ctx, "mark_payment_failed", []attribute.KeyValue{
		attribute.String("invoice_id", inv.InvoiceID),
		attribute.String("subscription_id", inv.SubscriptionID),
	}, func(ctx context.Context, store Store) (Outcome, error) {
		if inv.InvoiceID != "" {
			paid, err := store.PaymentExists(ctx, inv.InvoiceID)
			if err != nil {
				return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check invoice")
			}
			if paid {
				return Outcome{}, nil
			}
		}
		now := requestcontext.Now(ctx)
		sub, created, err := l.subscriptionForUpdate(ctx, store, inv.SubscriptionID, now)
		if err != nil {
			return Outcome{}, err
		}
		if sub.IsStale(inv.OccurredAt) {
			l.logger.InfoContext(ctx, "stale payment failure ignored",
				"subscription_id", inv.SubscriptionID,
				"invoice_id", inv.InvoiceID,
				"event_id", requestcontext.EventID(ctx),
			)
			return Outcome{Applied: created}, nil
		}
		sub.RefreshSupporter(inv.Supporter)

		next := models.SubscriptionStatusPastDue
		if sub.Status == models.SubscriptionStatusCreated {
			next = models.SubscriptionStatusIncomplete
		}
		moved := sub.TransitionTo(next, now)
		advanced := sub.ObserveProviderEvent(inv.OccurredAt)
		if !moved && !created && !advanced {
			return Outcome{}, nil
		}
		if err := store.UpdateSubscription(ctx, sub); err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subscription")
		}
		l.logger.WarnContext(ctx, "subscription payment failed",
			"subscription_id", inv.SubscriptionID,
			"invoice_id", inv.InvoiceID,
			"status", sub.Status,
		)
		return Outcome{Applied: true, Transitioned: moved}, nil
	})
}

// SyncSubscriptionStatus applies a provider-side status through the state
// machine. Disallowed moves, including leaving CANCELED, and updates older
// than the newest applied provider event are ignored.
func (l *Ledger) SyncSubscriptionStatus(ctx context.Context, u models.SubscriptionUpdate) (Outcome, error) {
	if u.SubscriptionID == "" {
		return Outcome{}, dErrors.New(dErrors.CodeValidation, "subscription id is required")
	}
	return l.run(ctx, "sync_subscription_status", []attribute.KeyValue{
		attribute.String("subscription_id", u.SubscriptionID),
		attribute.String("provider_status", u.Status),
	}, func(ctx context.Context, store Store) (Outcome, error) {
		next, known := models.SubscriptionStatusFromProvider(u.Status)
		now := requestcontext.Now(ctx)
		sub, created, err := l.subscriptionForUpdate(ctx, store, u.SubscriptionID, now)
		if err != nil {
			return Outcome{}, err
		}
		if sub.IsStale(u.OccurredAt) {
			l.logger.InfoContext(ctx, "stale subscription update ignored",
				"subscription_id", u.SubscriptionID,
				"provider_status", u.Status,
				"event_id", requestcontext.EventID(ctx),
			)
			return Outcome{Applied: created}, nil
		}
		sub.RefreshSupporter(models.Supporter{CustomerID: u.CustomerID})
		sub.RefreshPlan(u.PriceID, "")

		moved := known && sub.TransitionTo(next, now)
		advanced := sub.ObserveProviderEvent(u.OccurredAt)
		if moved && next == models.SubscriptionStatusCanceled && u.CanceledAt != nil {
			at := *u.CanceledAt
			sub.CanceledAt = &at
		}
		if !moved && !created && !advanced {
			return Outcome{}, nil
		}
		if err := store.UpdateSubscription(ctx, sub); err != nil {
			return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subscription")
		}
		return Outcome{Applied: true, Transitioned: moved}, nil
	})
}

// FindDonation returns the donation for sessionID.
func (l *Ledger) FindDonation(ctx context.Context, sessionID string) (*models.Donation, error) {
	var d *models.Donation
	err := l.store.RunInTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		d, err = store.FindDonation(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "donation not found")
	}
	return d, nil
}

// FindSubscription returns the subscription with the external subscriptionID.
func (l *Ledger) FindSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := l.store.RunInTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		sub, err = store.FindSubscription(ctx, subscriptionID)
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "subscription not found")
	}
	return sub, nil
}

// ListPayments returns the payment history of the external subscriptionID.
func (l *Ledger) ListPayments(ctx context.Context, subscriptionID string) ([]*models.SubscriptionPayment, error) {
	var out []*models.SubscriptionPayment
	err := l.store.RunInTx(ctx, func(ctx context.Context, store Store) error {
		sub, err := store.FindSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		out, err = store.ListPayments(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "subscription not found")
	}
	return out, nil
}

func findOptional(sub *models.Subscription, err error) (*models.Subscription, error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
	}
	return sub, nil
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger read failed")
}
