// Package checkout creates hosted payment pages for donations and
// subscriptions and records the pending ledger rows they will complete.
package checkout

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"clubpay/internal/payments/ledger"
	paymetrics "clubpay/internal/payments/metrics"
	"clubpay/internal/payments/models"
	dErrors "clubpay/pkg/domain-errors"
)

const (
	KindDonation     = "donation"
	KindSubscription = "subscription"
)

// Ledger records the CREATED rows for new checkout sessions.
type Ledger interface {
	RecordCreatedSession(ctx context.Context, sessionID string, intendedAmount int64, currency string, donor models.Donor) (ledger.Outcome, error)
	RecordSubscriptionCheckout(ctx context.Context, sessionID, planCode, priceID string, supporter models.Supporter) (ledger.Outcome, error)
}

type Service struct {
	provider   Provider
	ledger     Ledger
	plans      map[string]string
	minAmount  int64
	currencies []string
	logger     *slog.Logger
	metrics    *paymetrics.Metrics
}

type Option func(*Service)

// WithPlans sets the plan code to price id mapping.
func WithPlans(plans map[string]string) Option {
	return func(s *Service) { s.plans = plans }
}

func WithMinDonationAmount(amount int64) Option {
	return func(s *Service) { s.minAmount = amount }
}

// WithCurrencies restricts donations to the given ISO codes; empty allows any.
func WithCurrencies(currencies []string) Option {
	return func(s *Service) {
		s.currencies = make([]string, 0, len(currencies))
		for _, c := range currencies {
			s.currencies = append(s.currencies, strings.ToLower(strings.TrimSpace(c)))
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *paymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(provider Provider, l Ledger, opts ...Option) *Service {
	s := &Service{
		provider:  provider,
		ledger:    l,
		plans:     map[string]string{},
		minAmount: 1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDonationCheckout opens a payment-mode session and records a CREATED
// donation for it. A ledger failure does not fail the request: the first
// webhook for the session creates the row lazily.
func (s *Service) CreateDonationCheckout(ctx context.Context, req *DonationCheckoutRequest) (*CheckoutResponse, error) {
	if req.Amount < s.minAmount {
		return nil, dErrors.New(dErrors.CodeValidation, "amount is below the minimum donation")
	}
	if len(s.currencies) > 0 && !slices.Contains(s.currencies, req.Currency) {
		return nil, dErrors.New(dErrors.CodeValidation, "currency is not accepted")
	}

	start := time.Now()
	sess, err := s.provider.CreateDonationSession(ctx, DonationSession{
		Amount:   req.Amount,
		Currency: req.Currency,
		Email:    req.Email,
		Name:     req.Name,
		Message:  req.Message,
	})
	s.observe(start)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create donation checkout", "error", err)
		return nil, err
	}

	donor := models.Donor{Email: req.Email, Name: req.Name, Message: req.Message}
	if _, err := s.ledger.RecordCreatedSession(ctx, sess.ID, req.Amount, req.Currency, donor); err != nil {
		s.logger.WarnContext(ctx, "failed to record donation session",
			"session_id", sess.ID,
			"error", err,
		)
	}
	s.created(KindDonation)
	s.logger.InfoContext(ctx, "donation checkout created",
		"session_id", sess.ID,
		"amount", req.Amount,
		"currency", req.Currency,
	)
	return &CheckoutResponse{CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

// CreateSubscriptionCheckout resolves the plan's price and opens a
// subscription-mode session keyed by the new checkout session id.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, req *SubscriptionCheckoutRequest) (*CheckoutResponse, error) {
	priceID, ok := s.plans[req.PlanCode]
	if !ok || priceID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown plan_code")
	}

	start := time.Now()
	sess, err := s.provider.CreateSubscriptionSession(ctx, SubscriptionSession{
		PlanCode: req.PlanCode,
		PriceID:  priceID,
		Email:    req.Email,
		Name:     req.Name,
	})
	s.observe(start)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create subscription checkout",
			"plan_code", req.PlanCode,
			"error", err,
		)
		return nil, err
	}

	supporter := models.Supporter{Email: req.Email, Name: req.Name}
	if _, err := s.ledger.RecordSubscriptionCheckout(ctx, sess.ID, req.PlanCode, priceID, supporter); err != nil {
		s.logger.WarnContext(ctx, "failed to record subscription checkout",
			"session_id", sess.ID,
			"error", err,
		)
	}
	s.created(KindSubscription)
	s.logger.InfoContext(ctx, "subscription checkout created",
		"session_id", sess.ID,
		"plan_code", req.PlanCode,
	)
	return &CheckoutResponse{CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

func (s *Service) observe(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCheckout(start)
	}
}

func (s *Service) created(kind string) {
	if s.metrics != nil {
		s.metrics.IncCheckoutCreated(kind)
	}
}
