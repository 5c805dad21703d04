package ledger

import (
	"context"

	"github.com/google/uuid"

	"clubpay/internal/payments/models"
)

// Store is the ledger's view of persisted state inside one transaction.
// Finders return sentinel.ErrNotFound when no row matches and hold the row
// lock until the transaction ends. Inserts report false when a uniqueness
// constraint already holds a row for the same key.
type Store interface {
	FindDonation(ctx context.Context, sessionID string) (*models.Donation, error)
	InsertDonation(ctx context.Context, d *models.Donation) (bool, error)
	UpdateDonation(ctx context.Context, d *models.Donation) error

	FindSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	FindSubscriptionByCheckoutSession(ctx context.Context, sessionID string) (*models.Subscription, error)
	InsertSubscription(ctx context.Context, s *models.Subscription) (bool, error)
	UpdateSubscription(ctx context.Context, s *models.Subscription) error

	PaymentExists(ctx context.Context, invoiceID string) (bool, error)
	InsertPayment(ctx context.Context, p *models.SubscriptionPayment) (bool, error)
	ListPayments(ctx context.Context, subscriptionRef uuid.UUID) ([]*models.SubscriptionPayment, error)
}

// TxStore runs fn inside one transaction. fn's error rolls everything back,
// including outbox rows written through the same context.
type TxStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
