package ledger_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"clubpay/internal/events"
	"clubpay/internal/payments/ledger"
	"clubpay/internal/payments/models"
	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/platform/outbox"
	"clubpay/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite
	store  *ledger.InMemoryStore
	outbox *outbox.InMemoryStore
	ledger *ledger.Ledger
	ctx    context.Context
	now    time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = ledger.NewInMemoryStore()
	s.outbox = outbox.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.ledger = ledger.New(s.store, events.NewEmitter(s.outbox), ledger.WithLogger(logger))
	s.now = time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *LedgerSuite) emitted(routingKey string) []outbox.Entry {
	var out []outbox.Entry
	for _, e := range s.outbox.Entries() {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}

func paidSession(sessionID string, amount int64, currency string) models.SessionPayment {
	return models.SessionPayment{
		SessionID:       sessionID,
		PaymentIntentID: "pi_" + sessionID,
		AmountTotal:     amount,
		Currency:        currency,
		Paid:            true,
		Donor:           models.Donor{Email: "a@x.com", Name: "Ana"},
	}
}

func (s *LedgerSuite) TestDonationScenario() {
	out, err := s.ledger.RecordCreatedSession(s.ctx, "cs_1", 500, "ron", models.Donor{Email: "a@x.com"})
	s.Require().NoError(err)
	s.True(out.Applied)

	d, err := s.ledger.FindDonation(s.ctx, "cs_1")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusCreated, d.Status)
	s.Equal(int64(500), d.IntendedAmount)
	s.Nil(d.PaidAt)

	out, err = s.ledger.MarkPaidFromSession(s.ctx, paidSession("cs_1", 500, "ron"))
	s.Require().NoError(err)
	s.True(out.Transitioned)

	d, err = s.ledger.FindDonation(s.ctx, "cs_1")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusPaid, d.Status)
	s.Equal(int64(500), d.FinalAmount)
	s.Require().NotNil(d.PaidAt)
	s.Equal(s.now, *d.PaidAt)
	first := *d

	s.Run("replay leaves the row unchanged", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
		out, err := s.ledger.MarkPaidFromSession(later, paidSession("cs_1", 500, "ron"))
		s.Require().NoError(err)
		s.False(out.Transitioned)

		d, err := s.ledger.FindDonation(s.ctx, "cs_1")
		s.Require().NoError(err)
		s.Equal(first, *d)
		s.Len(s.emitted(events.RoutingKeyDonationCompleted), 1)
	})

	s.Run("recording the session again does not reset it", func() {
		out, err := s.ledger.RecordCreatedSession(s.ctx, "cs_1", 999, "eur", models.Donor{})
		s.Require().NoError(err)
		s.False(out.Applied)
		d, err := s.ledger.FindDonation(s.ctx, "cs_1")
		s.Require().NoError(err)
		s.Equal(models.DonationStatusPaid, d.Status)
	})
}

func (s *LedgerSuite) TestMarkPaidIsIdempotentOnFreshDonation() {
	for i := 0; i < 5; i++ {
		_, err := s.ledger.MarkPaidFromSession(s.ctx, paidSession("cs_lazy", 1200, "eur"))
		s.Require().NoError(err)
	}
	d, err := s.ledger.FindDonation(s.ctx, "cs_lazy")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusPaid, d.Status)
	s.Equal(int64(1200), d.FinalAmount)
	s.Equal(int64(1200), d.IntendedAmount)
	s.Len(s.emitted(events.RoutingKeyDonationCompleted), 1)
}

func (s *LedgerSuite) TestUnpaidSessionOnlyCreatesRow() {
	p := paidSession("cs_async", 700, "ron")
	p.Paid = false
	out, err := s.ledger.MarkPaidFromSession(s.ctx, p)
	s.Require().NoError(err)
	s.True(out.Applied)
	s.False(out.Transitioned)

	d, err := s.ledger.FindDonation(s.ctx, "cs_async")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusCreated, d.Status)
	s.Empty(s.emitted(events.RoutingKeyDonationCompleted))
}

func (s *LedgerSuite) TestInvoiceScenario() {
	_, err := s.ledger.UpsertSubscriptionFromCheckout(s.ctx, models.SubscriptionCheckout{
		SessionID:      "cs_sub",
		SubscriptionID: "sub_7",
		PlanCode:       "supporter",
		Supporter:      models.Supporter{CustomerID: "cus_1", Email: "b@y.org", Name: "Bea"},
	})
	s.Require().NoError(err)
	sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusCreated, sub.Status)

	out, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
		InvoiceID:      "in_9",
		SubscriptionID: "sub_7",
		AmountPaid:     2500,
		Currency:       "eur",
		Paid:           true,
	})
	s.Require().NoError(err)
	s.True(out.Transitioned)

	sub, err = s.ledger.FindSubscription(s.ctx, "sub_7")
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusActive, sub.Status)

	payments, err := s.ledger.ListPayments(s.ctx, "sub_7")
	s.Require().NoError(err)
	s.Require().Len(payments, 1)
	s.Equal("in_9", payments[0].InvoiceID)
	s.Equal(int64(2500), payments[0].AmountPaid)

	emitted := s.emitted(events.RoutingKeySubscriptionPaymentComplete)
	s.Require().Len(emitted, 1)
	ev, err := events.Decode[events.SubscriptionPaymentCompletedEvent](emitted[0].Payload)
	s.Require().NoError(err)
	s.Equal("b@y.org", ev.SupporterEmail)
	s.Equal("supporter", ev.PlanCode)

	s.Run("replayed invoice adds nothing", func() {
		for i := 0; i < 3; i++ {
			out, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
				InvoiceID: "in_9", SubscriptionID: "sub_7", AmountPaid: 2500, Currency: "eur", Paid: true,
			})
			s.Require().NoError(err)
			s.False(out.Applied)
		}
		payments, err := s.ledger.ListPayments(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Len(payments, 1)
		s.Len(s.emitted(events.RoutingKeySubscriptionPaymentComplete), 1)
	})
}

func (s *LedgerSuite) TestInvoiceBeforeCheckoutCreatesParent() {
	_, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
		InvoiceID: "in_early", SubscriptionID: "sub_early", AmountPaid: 1000, Currency: "eur", Paid: true,
	})
	s.Require().NoError(err)

	sub, err := s.ledger.FindSubscription(s.ctx, "sub_early")
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusActive, sub.Status)

	_, err = s.ledger.UpsertSubscriptionFromCheckout(s.ctx, models.SubscriptionCheckout{
		SessionID:      "cs_late",
		SubscriptionID: "sub_early",
		Supporter:      models.Supporter{Email: "late@x.com"},
	})
	s.Require().NoError(err)
	sub, err = s.ledger.FindSubscription(s.ctx, "sub_early")
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusActive, sub.Status, "checkout never touches status")
	s.Equal("late@x.com", sub.SupporterEmail)
	s.Equal("cs_late", sub.CheckoutSessionID)
}

func (s *LedgerSuite) TestCheckoutLinksPendingSubscription() {
	_, err := s.ledger.RecordSubscriptionCheckout(s.ctx, "cs_pending", "family", "price_family", models.Supporter{Email: "f@x.com"})
	s.Require().NoError(err)

	_, err = s.ledger.UpsertSubscriptionFromCheckout(s.ctx, models.SubscriptionCheckout{
		SessionID:      "cs_pending",
		SubscriptionID: "sub_linked",
		Supporter:      models.Supporter{CustomerID: "cus_9"},
	})
	s.Require().NoError(err)

	sub, err := s.ledger.FindSubscription(s.ctx, "sub_linked")
	s.Require().NoError(err)
	s.Equal("cs_pending", sub.CheckoutSessionID)
	s.Equal("family", sub.PlanCode)
	s.Equal("price_family", sub.PriceID)
	s.Equal("cus_9", sub.CustomerID)
	s.Equal("f@x.com", sub.SupporterEmail)
}

func (s *LedgerSuite) TestCancellationIsTerminal() {
	_, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
		InvoiceID: "in_1", SubscriptionID: "sub_c", AmountPaid: 500, Currency: "eur", Paid: true,
	})
	s.Require().NoError(err)

	out, err := s.ledger.MarkCanceled(s.ctx, "sub_c", nil)
	s.Require().NoError(err)
	s.True(out.Transitioned)

	sub, err := s.ledger.FindSubscription(s.ctx, "sub_c")
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusCanceled, sub.Status)
	s.Require().NotNil(sub.CanceledAt)

	s.Run("later paid invoice records payment but keeps status", func() {
		_, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
			InvoiceID: "in_2", SubscriptionID: "sub_c", AmountPaid: 500, Currency: "eur", Paid: true,
		})
		s.Require().NoError(err)
		sub, err := s.ledger.FindSubscription(s.ctx, "sub_c")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusCanceled, sub.Status)
		payments, err := s.ledger.ListPayments(s.ctx, "sub_c")
		s.Require().NoError(err)
		s.Len(payments, 2)
	})

	s.Run("provider status cannot revive it", func() {
		out, err := s.ledger.SyncSubscriptionStatus(s.ctx, models.SubscriptionUpdate{SubscriptionID: "sub_c", Status: "active"})
		s.Require().NoError(err)
		s.False(out.Transitioned)
		sub, err := s.ledger.FindSubscription(s.ctx, "sub_c")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusCanceled, sub.Status)
	})

	s.Run("canceling again is a no-op", func() {
		out, err := s.ledger.MarkCanceled(s.ctx, "sub_c", nil)
		s.Require().NoError(err)
		s.False(out.Applied)
	})
}

func (s *LedgerSuite) TestCancelUnknownSubscriptionIsNoop() {
	out, err := s.ledger.MarkCanceled(s.ctx, "sub_missing", nil)
	s.Require().NoError(err)
	s.False(out.Applied)

	_, err = s.ledger.FindSubscription(s.ctx, "sub_missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestPaymentFailureStates() {
	s.Run("failure before first payment is incomplete", func() {
		_, err := s.ledger.MarkPaymentFailed(s.ctx, models.InvoicePayment{InvoiceID: "in_f1", SubscriptionID: "sub_f1"})
		s.Require().NoError(err)
		sub, err := s.ledger.FindSubscription(s.ctx, "sub_f1")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusIncomplete, sub.Status)

		_, err = s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
			InvoiceID: "in_f1b", SubscriptionID: "sub_f1", AmountPaid: 100, Currency: "eur", Paid: true,
		})
		s.Require().NoError(err)
		sub, err = s.ledger.FindSubscription(s.ctx, "sub_f1")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusActive, sub.Status)
	})

	s.Run("failure on active is past due, recovery reactivates", func() {
		_, err := s.ledger.MarkPaymentFailed(s.ctx, models.InvoicePayment{InvoiceID: "in_f2", SubscriptionID: "sub_f1"})
		s.Require().NoError(err)
		sub, err := s.ledger.FindSubscription(s.ctx, "sub_f1")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusPastDue, sub.Status)

		_, err = s.ledger.SyncSubscriptionStatus(s.ctx, models.SubscriptionUpdate{SubscriptionID: "sub_f1", Status: "unpaid"})
		s.Require().NoError(err)
		sub, err = s.ledger.FindSubscription(s.ctx, "sub_f1")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusUnpaid, sub.Status)

		_, err = s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
			InvoiceID: "in_f2", SubscriptionID: "sub_f1", AmountPaid: 100, Currency: "eur", Paid: true,
		})
		s.Require().NoError(err)
		sub, err = s.ledger.FindSubscription(s.ctx, "sub_f1")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusActive, sub.Status)
	})

	s.Run("stale failure for a paid invoice is ignored", func() {
		out, err := s.ledger.MarkPaymentFailed(s.ctx, models.InvoicePayment{InvoiceID: "in_f2", SubscriptionID: "sub_f1"})
		s.Require().NoError(err)
		s.False(out.Applied)
	})
}

func (s *LedgerSuite) TestOutOfOrderProviderEvents() {
	t0 := s.now.Add(-time.Hour)
	s.Run("late past_due update does not undo a newer payment", func() {
		_, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
			InvoiceID: "in_1", SubscriptionID: "sub_7", AmountPaid: 2500, Currency: "eur", Paid: true,
			OccurredAt: t0.Add(2 * time.Minute),
		})
		s.Require().NoError(err)

		out, err := s.ledger.SyncSubscriptionStatus(s.ctx, models.SubscriptionUpdate{
			SubscriptionID: "sub_7", Status: "past_due", OccurredAt: t0.Add(time.Minute),
		})
		s.Require().NoError(err)
		s.False(out.Transitioned)

		sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusActive, sub.Status)
		s.Require().NotNil(sub.ProviderUpdatedAt)
		s.Equal(t0.Add(2*time.Minute), *sub.ProviderUpdatedAt)
	})

	s.Run("older failed invoice does not undo a newer payment", func() {
		out, err := s.ledger.MarkPaymentFailed(s.ctx, models.InvoicePayment{
			InvoiceID: "in_0", SubscriptionID: "sub_7", OccurredAt: t0,
		})
		s.Require().NoError(err)
		s.False(out.Applied)

		sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusActive, sub.Status)
	})

	s.Run("newer failure still applies", func() {
		out, err := s.ledger.MarkPaymentFailed(s.ctx, models.InvoicePayment{
			InvoiceID: "in_2", SubscriptionID: "sub_7", OccurredAt: t0.Add(10 * time.Minute),
		})
		s.Require().NoError(err)
		s.True(out.Transitioned)

		sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusPastDue, sub.Status)
	})

	s.Run("older paid invoice is recorded without reactivating", func() {
		out, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
			InvoiceID: "in_late", SubscriptionID: "sub_7", AmountPaid: 2500, Currency: "eur", Paid: true,
			OccurredAt: t0.Add(5 * time.Minute),
		})
		s.Require().NoError(err)
		s.True(out.Applied)

		sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusPastDue, sub.Status)
		payments, err := s.ledger.ListPayments(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Len(payments, 2)
	})

	s.Run("update without a change still advances the watermark", func() {
		_, err := s.ledger.SyncSubscriptionStatus(s.ctx, models.SubscriptionUpdate{
			SubscriptionID: "sub_7", Status: "past_due", OccurredAt: t0.Add(20 * time.Minute),
		})
		s.Require().NoError(err)

		_, err = s.ledger.SyncSubscriptionStatus(s.ctx, models.SubscriptionUpdate{
			SubscriptionID: "sub_7", Status: "active", OccurredAt: t0.Add(15 * time.Minute),
		})
		s.Require().NoError(err)

		sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
		s.Require().NoError(err)
		s.Equal(models.SubscriptionStatusPastDue, sub.Status)
	})
}

func (s *LedgerSuite) TestValidation() {
	_, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{SubscriptionID: "sub_x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{InvoiceID: "in_x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.ledger.UpsertSubscriptionFromCheckout(s.ctx, models.SubscriptionCheckout{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.ledger.MarkPaidFromSession(s.ctx, models.SessionPayment{Paid: true})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

type failingSink struct{}

func (failingSink) Emit(context.Context, events.Event) error {
	return errors.New("outbox unavailable")
}

func (s *LedgerSuite) TestEmitFailureRollsBackMutation() {
	l := ledger.New(s.store, failingSink{})
	_, err := l.MarkPaidFromSession(s.ctx, paidSession("cs_rollback", 300, "ron"))
	s.Require().Error(err)

	_, err = s.ledger.FindDonation(s.ctx, "cs_rollback")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "donation must not survive a failed transaction")
}

func (s *LedgerSuite) TestConcurrentDuplicateDelivery() {
	const goroutines = 50
	var wg sync.WaitGroup
	errs := make(chan error, goroutines*2)

	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.ledger.RecordInvoicePaid(s.ctx, models.InvoicePayment{
				InvoiceID: "in_123", SubscriptionID: "sub_cc", AmountPaid: 900, Currency: "eur", Paid: true,
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.ledger.MarkPaidFromSession(s.ctx, paidSession("cs_cc", 900, "eur"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	payments, err := s.ledger.ListPayments(s.ctx, "sub_cc")
	s.Require().NoError(err)
	s.Len(payments, 1)
	s.Len(s.emitted(events.RoutingKeySubscriptionPaymentComplete), 1)
	s.Len(s.emitted(events.RoutingKeyDonationCompleted), 1)
}
