package webhook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"clubpay/internal/events"
	"clubpay/internal/payments/ledger"
	"clubpay/internal/payments/models"
	"clubpay/internal/payments/webhook"
	"clubpay/internal/payments/webhook/mocks"
	"clubpay/pkg/platform/outbox"
	"clubpay/pkg/requestcontext"
	"clubpay/pkg/testutil"
)

const (
	donationSecret     = "whsec_donations"
	subscriptionSecret = "whsec_subscriptions"
)

type ProcessorSuite struct {
	suite.Suite
	ctx       context.Context
	ledger    *ledger.Ledger
	ledgerDB  *ledger.InMemoryStore
	outbox    *outbox.InMemoryStore
	events    *webhook.InMemoryStore
	processor *webhook.Processor
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func testVerifiers() map[webhook.Flow]*webhook.Verifier {
	return map[webhook.Flow]*webhook.Verifier{
		webhook.FlowDonations:     webhook.NewVerifier(donationSecret, 5*time.Minute),
		webhook.FlowSubscriptions: webhook.NewVerifier(subscriptionSecret, 5*time.Minute),
	}
}

func (s *ProcessorSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC))
	s.ledgerDB = ledger.NewInMemoryStore()
	s.outbox = outbox.NewInMemoryStore()
	s.ledger = ledger.New(s.ledgerDB, events.NewEmitter(s.outbox), ledger.WithLogger(logger))
	s.events = webhook.NewInMemoryStore()
	router := webhook.NewRouter(s.ledger, nil, logger)
	s.processor = webhook.NewProcessor(router, s.events, testVerifiers(), webhook.WithLogger(logger))
}

func (s *ProcessorSuite) signed(secret string, payload []byte) string {
	return testutil.StripeSignatureHeader(secret, payload, time.Now())
}

func donationPaid(eventID string) []byte {
	return testutil.StripeEvent(eventID, webhook.EventCheckoutCompleted, `{
		"id":"cs_1","object":"checkout.session","mode":"payment","payment_status":"paid",
		"amount_total":500,"currency":"ron","customer_details":{"email":"a@x.com","name":"Ana"}}`)
}

func (s *ProcessorSuite) TestDonationPaidOnce() {
	payload := donationPaid("evt_1")

	res, err := s.processor.Process(s.ctx, webhook.FlowDonations, payload, s.signed(donationSecret, payload))
	s.Require().NoError(err)
	s.Equal(webhook.ResultProcessed, res)

	d, err := s.ledger.FindDonation(s.ctx, "cs_1")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusPaid, d.Status)
	s.Equal(int64(500), d.FinalAmount)
	s.Len(s.outbox.Entries(), 1)

	rec, err := s.events.Find(s.ctx, "evt_1")
	s.Require().NoError(err)
	s.Equal(webhook.StatusProcessed, rec.Status)
}

func (s *ProcessorSuite) TestDuplicateDeliveryDoesNotRepeatEffects() {
	payload := donationPaid("evt_1")
	for i := 0; i < 3; i++ {
		res, err := s.processor.Process(s.ctx, webhook.FlowDonations, payload, s.signed(donationSecret, payload))
		s.Require().NoError(err)
		s.Equal(webhook.ResultProcessed, res)
	}
	// A different event id carrying the same session is still one donation.
	other := donationPaid("evt_2")
	_, err := s.processor.Process(s.ctx, webhook.FlowDonations, other, s.signed(donationSecret, other))
	s.Require().NoError(err)

	s.Len(s.outbox.Entries(), 1)
}

func (s *ProcessorSuite) TestInvalidSignatureChangesNothing() {
	payload := donationPaid("evt_1")

	_, err := s.processor.Process(s.ctx, webhook.FlowDonations, payload, s.signed("whsec_wrong", payload))
	s.ErrorIs(err, webhook.ErrInvalidSignature)

	// The subscription secret does not authenticate the donation endpoint.
	_, err = s.processor.Process(s.ctx, webhook.FlowDonations, payload, s.signed(subscriptionSecret, payload))
	s.ErrorIs(err, webhook.ErrInvalidSignature)

	_, err = s.ledger.FindDonation(s.ctx, "cs_1")
	s.Error(err)
	s.Empty(s.outbox.Entries())
	_, err = s.events.Find(s.ctx, "evt_1")
	s.Error(err, "rejected callbacks are not stored")
}

func (s *ProcessorSuite) TestInvoiceScenario() {
	payload := testutil.StripeEvent("evt_in9", webhook.EventInvoicePaid, `{
		"id":"in_9","object":"invoice","subscription":"sub_7","amount_paid":2500,"currency":"eur",
		"paid":true,"status":"paid","customer_email":"fan@x.com"}`)

	for i := 0; i < 2; i++ {
		_, err := s.processor.Process(s.ctx, webhook.FlowSubscriptions, payload, s.signed(subscriptionSecret, payload))
		s.Require().NoError(err)
	}

	sub, err := s.ledger.FindSubscription(s.ctx, "sub_7")
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusActive, sub.Status)
	payments, err := s.ledger.ListPayments(s.ctx, "sub_7")
	s.Require().NoError(err)
	s.Len(payments, 1)
	s.Equal(int64(2500), payments[0].AmountPaid)
	s.Len(s.outbox.Entries(), 1)
}

func (s *ProcessorSuite) TestConcurrentDuplicateDelivery() {
	payload := testutil.StripeEvent("evt_in123", webhook.EventInvoicePaid, `{
		"id":"in_123","object":"invoice","subscription":"sub_9","amount_paid":1500,"currency":"ron","paid":true}`)
	header := s.signed(subscriptionSecret, payload)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.processor.Process(s.ctx, webhook.FlowSubscriptions, payload, header)
			if err != nil || res == webhook.ResultFailed {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	payments, err := s.ledger.ListPayments(s.ctx, "sub_9")
	s.Require().NoError(err)
	s.Len(payments, 1)
	s.Len(s.outbox.Entries(), 1)
}

func (s *ProcessorSuite) TestFailureIsDeadLetteredAndReplayable() {
	ctrl := gomock.NewController(s.T())
	flaky := mocks.NewMockLedger(ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	processor := webhook.NewProcessor(webhook.NewRouter(flaky, nil, logger), s.events, testVerifiers(), webhook.WithLogger(logger))

	gomock.InOrder(
		flaky.EXPECT().MarkCanceled(gomock.Any(), "sub_7", gomock.Any()).Return(ledger.Outcome{}, errors.New("connection reset")),
		flaky.EXPECT().MarkCanceled(gomock.Any(), "sub_7", gomock.Any()).Return(ledger.Outcome{Applied: true, Transitioned: true}, nil),
	)

	payload := testutil.StripeEvent("evt_del", webhook.EventSubscriptionDeleted, `{"id":"sub_7","object":"subscription","status":"canceled"}`)
	res, err := processor.Process(s.ctx, webhook.FlowSubscriptions, payload, s.signed(subscriptionSecret, payload))
	s.Require().NoError(err)
	s.Equal(webhook.ResultFailed, res)

	failed, err := processor.ListFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal("evt_del", failed[0].EventID)
	s.Contains(failed[0].Error, "connection reset")

	res, err = processor.Replay(s.ctx, "evt_del")
	s.Require().NoError(err)
	s.Equal(webhook.ResultProcessed, res)

	failed, err = processor.ListFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(failed)
	rec, err := s.events.Find(s.ctx, "evt_del")
	s.Require().NoError(err)
	s.Equal(2, rec.Attempts)
}

func (s *ProcessorSuite) TestReplayUnknownEvent() {
	_, err := s.processor.Replay(s.ctx, "evt_missing")
	s.Error(err)
}

func (s *ProcessorSuite) TestReplayFailedBatch() {
	ctrl := gomock.NewController(s.T())
	flaky := mocks.NewMockLedger(ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	processor := webhook.NewProcessor(webhook.NewRouter(flaky, nil, logger), s.events, testVerifiers(), webhook.WithLogger(logger))

	flaky.EXPECT().SyncSubscriptionStatus(gomock.Any(), gomock.Any()).Return(ledger.Outcome{}, errors.New("timeout")).Times(2)
	for _, id := range []string{"evt_a", "evt_b"} {
		payload := testutil.StripeEvent(id, webhook.EventSubscriptionUpdated, `{"id":"sub_1","object":"subscription","status":"past_due"}`)
		_, err := processor.Process(s.ctx, webhook.FlowSubscriptions, payload, s.signed(subscriptionSecret, payload))
		s.Require().NoError(err)
	}

	flaky.EXPECT().SyncSubscriptionStatus(gomock.Any(), gomock.Any()).Return(ledger.Outcome{Applied: true}, nil)
	flaky.EXPECT().SyncSubscriptionStatus(gomock.Any(), gomock.Any()).Return(ledger.Outcome{}, errors.New("timeout"))

	ok, failed, err := processor.ReplayFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, ok)
	s.Equal(1, failed)
}
