package checkout_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"clubpay/internal/events"
	"clubpay/internal/payments/checkout"
	"clubpay/internal/payments/checkout/mocks"
	"clubpay/internal/payments/ledger"
	"clubpay/internal/payments/models"
	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/platform/outbox"
	"clubpay/pkg/requestcontext"
)

//go:generate mockgen -source=provider.go -destination=mocks/provider-mocks.go -package=mocks Provider

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockProvider
	store    *ledger.InMemoryStore
	ledger   *ledger.Ledger
	service  *checkout.Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.store = ledger.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.ledger = ledger.New(s.store, events.NewEmitter(outbox.NewInMemoryStore()), ledger.WithLogger(logger))
	s.service = checkout.NewService(s.provider, s.ledger,
		checkout.WithPlans(map[string]string{"monthly": "price_m"}),
		checkout.WithMinDonationAmount(100),
		checkout.WithCurrencies([]string{"RON", "eur"}),
		checkout.WithLogger(logger),
	)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC))
}

func donationRequest() *checkout.DonationCheckoutRequest {
	return &checkout.DonationCheckoutRequest{
		Amount:   500,
		Currency: "ron",
		Email:    "a@x.com",
		Name:     "Ana",
		Message:  "Hai!",
	}
}

func (s *ServiceSuite) TestCreateDonationCheckout() {
	s.provider.EXPECT().CreateDonationSession(gomock.Any(), checkout.DonationSession{
		Amount:   500,
		Currency: "ron",
		Email:    "a@x.com",
		Name:     "Ana",
		Message:  "Hai!",
	}).Return(&checkout.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil)

	resp, err := s.service.CreateDonationCheckout(s.ctx, donationRequest())
	s.Require().NoError(err)
	s.Equal("cs_1", resp.SessionID)
	s.Equal("https://pay.example/cs_1", resp.CheckoutURL)

	d, err := s.ledger.FindDonation(s.ctx, "cs_1")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusCreated, d.Status)
	s.Equal(int64(500), d.IntendedAmount)
	s.Equal("Hai!", d.DonorMessage)
}

func (s *ServiceSuite) TestCreateDonationCheckout_Rejected() {
	tests := []struct {
		name   string
		mutate func(r *checkout.DonationCheckoutRequest)
	}{
		{"below minimum", func(r *checkout.DonationCheckoutRequest) { r.Amount = 99 }},
		{"currency not accepted", func(r *checkout.DonationCheckoutRequest) { r.Currency = "usd" }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := donationRequest()
			tt.mutate(req)
			_, err := s.service.CreateDonationCheckout(s.ctx, req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *ServiceSuite) TestCreateDonationCheckout_ProviderFailure() {
	providerErr := dErrors.Wrap(errors.New("connection reset"), dErrors.CodeUnavailable, "payment provider unavailable")
	s.provider.EXPECT().CreateDonationSession(gomock.Any(), gomock.Any()).Return(nil, providerErr)

	_, err := s.service.CreateDonationCheckout(s.ctx, donationRequest())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ServiceSuite) TestCreateDonationCheckout_RecordedTwiceIsNoop() {
	s.provider.EXPECT().CreateDonationSession(gomock.Any(), gomock.Any()).
		Return(&checkout.Session{ID: "cs_1", URL: "u"}, nil).Times(2)

	_, err := s.service.CreateDonationCheckout(s.ctx, donationRequest())
	s.Require().NoError(err)
	req := donationRequest()
	req.Amount = 900
	_, err = s.service.CreateDonationCheckout(s.ctx, req)
	s.Require().NoError(err)

	d, err := s.ledger.FindDonation(s.ctx, "cs_1")
	s.Require().NoError(err)
	s.Equal(int64(500), d.IntendedAmount)
}

func (s *ServiceSuite) TestCreateSubscriptionCheckout() {
	s.provider.EXPECT().CreateSubscriptionSession(gomock.Any(), checkout.SubscriptionSession{
		PlanCode: "monthly",
		PriceID:  "price_m",
		Email:    "b@x.com",
		Name:     "Bogdan",
	}).Return(&checkout.Session{ID: "cs_sub", URL: "https://pay.example/cs_sub"}, nil)

	resp, err := s.service.CreateSubscriptionCheckout(s.ctx, &checkout.SubscriptionCheckoutRequest{
		PlanCode: "monthly",
		Email:    "b@x.com",
		Name:     "Bogdan",
	})
	s.Require().NoError(err)
	s.Equal("cs_sub", resp.SessionID)

	var sub *models.Subscription
	err = s.store.RunInTx(s.ctx, func(ctx context.Context, store ledger.Store) error {
		var err error
		sub, err = store.FindSubscriptionByCheckoutSession(ctx, "cs_sub")
		return err
	})
	s.Require().NoError(err)
	s.Equal(models.SubscriptionStatusCreated, sub.Status)
	s.Equal("monthly", sub.PlanCode)
	s.Equal("price_m", sub.PriceID)
}

func (s *ServiceSuite) TestCreateSubscriptionCheckout_UnknownPlan() {
	_, err := s.service.CreateSubscriptionCheckout(s.ctx, &checkout.SubscriptionCheckoutRequest{
		PlanCode: "yearly",
		Email:    "b@x.com",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
