package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"

	"clubpay/internal/payments/webhook"
	dErrors "clubpay/pkg/domain-errors"
)

// StripeProvider creates Stripe Checkout sessions. Metadata is written with
// the keys the webhook mapping reads back.
type StripeProvider struct {
	client      session.Client
	successURL  string
	cancelURL   string
	productName string
}

type StripeOption func(*StripeProvider)

// WithBackend points the client at a custom backend, e.g. a test server.
func WithBackend(b stripe.Backend) StripeOption {
	return func(p *StripeProvider) { p.client.B = b }
}

func WithProductName(name string) StripeOption {
	return func(p *StripeProvider) {
		if name != "" {
			p.productName = name
		}
	}
}

func NewStripeProvider(apiKey, successURL, cancelURL string, opts ...StripeOption) *StripeProvider {
	p := &StripeProvider{
		client:      session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey},
		successURL:  successURL,
		cancelURL:   cancelURL,
		productName: "Donation",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *StripeProvider) CreateDonationSession(ctx context.Context, d DonationSession) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(withSessionPlaceholder(p.successURL)),
		CancelURL:     stripe.String(p.cancelURL),
		CustomerEmail: stripe.String(d.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(d.Currency),
				UnitAmount: stripe.Int64(d.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.productName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	addMetadata(params, webhook.MetaDonorName, d.Name)
	addMetadata(params, webhook.MetaDonorMessage, d.Message)
	return p.create(params)
}

func (p *StripeProvider) CreateSubscriptionSession(ctx context.Context, s SubscriptionSession) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:    stripe.String(withSessionPlaceholder(p.successURL)),
		CancelURL:     stripe.String(p.cancelURL),
		CustomerEmail: stripe.String(s.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(s.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				webhook.MetaPlanCode: s.PlanCode,
				webhook.MetaPriceID:  s.PriceID,
			},
		},
	}
	params.Context = ctx
	addMetadata(params, webhook.MetaPlanCode, s.PlanCode)
	addMetadata(params, webhook.MetaPriceID, s.PriceID)
	addMetadata(params, webhook.MetaDonorName, s.Name)
	return p.create(params)
}

func (p *StripeProvider) create(params *stripe.CheckoutSessionParams) (*Session, error) {
	cs, err := p.client.New(params)
	if err != nil {
		return nil, providerError(err)
	}
	return &Session{ID: cs.ID, URL: cs.URL}, nil
}

func addMetadata(params *stripe.CheckoutSessionParams, key, value string) {
	if value != "" {
		params.AddMetadata(key, value)
	}
}

// withSessionPlaceholder lets the return page look the session up.
func withSessionPlaceholder(u string) string {
	if strings.Contains(u, "{CHECKOUT_SESSION_ID}") {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func providerError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeInvalidRequest {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "payment provider rejected the checkout request")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "payment provider unavailable")
}
