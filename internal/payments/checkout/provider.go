package checkout

import "context"

// Session is a hosted checkout page created by the payment provider.
type Session struct {
	ID  string
	URL string
}

// DonationSession describes a one-time payment page. Amount is in minor units.
type DonationSession struct {
	Amount   int64
	Currency string
	Email    string
	Name     string
	Message  string
}

// SubscriptionSession describes a recurring plan sign-up page.
type SubscriptionSession struct {
	PlanCode string
	PriceID  string
	Email    string
	Name     string
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateDonationSession(ctx context.Context, p DonationSession) (*Session, error)
	CreateSubscriptionSession(ctx context.Context, p SubscriptionSession) (*Session, error)
}
