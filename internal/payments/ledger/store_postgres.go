package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"clubpay/internal/payments/models"
	"clubpay/pkg/platform/sentinel"
	txcontext "clubpay/pkg/platform/tx"
)

// PostgresStore persists the ledger in PostgreSQL. Uniqueness is enforced by
// the schema; inserts use ON CONFLICT DO NOTHING so concurrent duplicates
// resolve to a single row.
type PostgresStore struct {
	db     *sql.DB
	runner *txcontext.Runner
}

func NewPostgres(db *sql.DB, txTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, runner: txcontext.NewRunner(db, txTimeout)}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.Exec(ctx, s.db)
}

// forUpdate locks selected rows when a transaction is active.
func forUpdate(ctx context.Context) string {
	if _, ok := txcontext.From(ctx); ok {
		return " FOR UPDATE"
	}
	return ""
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const donationColumns = `session_id, payment_intent_id, status, intended_amount, final_amount, currency,
	donor_email, donor_name, donor_message, created_at, updated_at, paid_at`

func (s *PostgresStore) FindDonation(ctx context.Context, sessionID string) (*models.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE session_id = $1` + forUpdate(ctx)
	var (
		d        models.Donation
		intentID sql.NullString
		status   string
		paidAt   sql.NullTime
	)
	err := s.exec(ctx).QueryRowContext(ctx, query, sessionID).Scan(
		&d.SessionID, &intentID, &status, &d.IntendedAmount, &d.FinalAmount, &d.Currency,
		&d.DonorEmail, &d.DonorName, &d.DonorMessage, &d.CreatedAt, &d.UpdatedAt, &paidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find donation: %w", err)
	}
	d.PaymentIntentID = intentID.String
	d.Status = models.DonationStatus(status)
	if paidAt.Valid {
		t := paidAt.Time
		d.PaidAt = &t
	}
	return &d, nil
}

func (s *PostgresStore) InsertDonation(ctx context.Context, d *models.Donation) (bool, error) {
	query := `
		INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO NOTHING
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		d.SessionID, nullString(d.PaymentIntentID), string(d.Status), d.IntendedAmount, d.FinalAmount, d.Currency,
		d.DonorEmail, d.DonorName, d.DonorMessage, d.CreatedAt, d.UpdatedAt, d.PaidAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert donation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert donation: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) UpdateDonation(ctx context.Context, d *models.Donation) error {
	query := `
		UPDATE donations SET
			payment_intent_id = $2, status = $3, final_amount = $4, currency = $5,
			donor_email = $6, donor_name = $7, donor_message = $8, updated_at = $9, paid_at = $10
		WHERE session_id = $1
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		d.SessionID, nullString(d.PaymentIntentID), string(d.Status), d.FinalAmount, d.Currency,
		d.DonorEmail, d.DonorName, d.DonorMessage, d.UpdatedAt, d.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("update donation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const subscriptionColumns = `id, checkout_session_id, subscription_id, customer_id, price_id, plan_code,
	status, supporter_email, supporter_name, created_at, updated_at, canceled_at, provider_updated_at`

func (s *PostgresStore) FindSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	if subscriptionID == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findSubscription(ctx, "subscription_id", subscriptionID)
}

func (s *PostgresStore) FindSubscriptionByCheckoutSession(ctx context.Context, sessionID string) (*models.Subscription, error) {
	if sessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findSubscription(ctx, "checkout_session_id", sessionID)
}

func (s *PostgresStore) findSubscription(ctx context.Context, column, value string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + column + ` = $1` + forUpdate(ctx)
	var (
		sub        models.Subscription
		sessionID  sql.NullString
		externalID sql.NullString
		status     string
		canceledAt sql.NullTime
		providerAt sql.NullTime
	)
	err := s.exec(ctx).QueryRowContext(ctx, query, value).Scan(
		&sub.ID, &sessionID, &externalID, &sub.CustomerID, &sub.PriceID, &sub.PlanCode,
		&status, &sub.SupporterEmail, &sub.SupporterName, &sub.CreatedAt, &sub.UpdatedAt, &canceledAt, &providerAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription by %s: %w", column, err)
	}
	sub.CheckoutSessionID = sessionID.String
	sub.SubscriptionID = externalID.String
	sub.Status = models.SubscriptionStatus(status)
	if canceledAt.Valid {
		t := canceledAt.Time
		sub.CanceledAt = &t
	}
	if providerAt.Valid {
		t := providerAt.Time
		sub.ProviderUpdatedAt = &t
	}
	return &sub, nil
}

func (s *PostgresStore) InsertSubscription(ctx context.Context, sub *models.Subscription) (bool, error) {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		sub.ID, nullString(sub.CheckoutSessionID), nullString(sub.SubscriptionID), sub.CustomerID, sub.PriceID, sub.PlanCode,
		string(sub.Status), sub.SupporterEmail, sub.SupporterName, sub.CreatedAt, sub.UpdatedAt, sub.CanceledAt, sub.ProviderUpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	query := `
		UPDATE subscriptions SET
			checkout_session_id = $2, subscription_id = $3, customer_id = $4, price_id = $5, plan_code = $6,
			status = $7, supporter_email = $8, supporter_name = $9, updated_at = $10, canceled_at = $11,
			provider_updated_at = $12
		WHERE id = $1
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		sub.ID, nullString(sub.CheckoutSessionID), nullString(sub.SubscriptionID), sub.CustomerID, sub.PriceID, sub.PlanCode,
		string(sub.Status), sub.SupporterEmail, sub.SupporterName, sub.UpdatedAt, sub.CanceledAt, sub.ProviderUpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update subscription: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PaymentExists(ctx context.Context, invoiceID string) (bool, error) {
	var exists bool
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscription_payments WHERE invoice_id = $1)`, invoiceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertPayment(ctx context.Context, p *models.SubscriptionPayment) (bool, error) {
	query := `
		INSERT INTO subscription_payments (invoice_id, subscription_ref, payment_intent_id, amount_paid, currency, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id) DO NOTHING
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		p.InvoiceID, p.SubscriptionRef, nullString(p.PaymentIntentID), p.AmountPaid, p.Currency, p.PaidAt, p.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert subscription payment: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ListPayments(ctx context.Context, subscriptionRef uuid.UUID) ([]*models.SubscriptionPayment, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT invoice_id, subscription_ref, payment_intent_id, amount_paid, currency, paid_at, created_at
		FROM subscription_payments
		WHERE subscription_ref = $1
		ORDER BY paid_at, invoice_id
	`, subscriptionRef)
	if err != nil {
		return nil, fmt.Errorf("list subscription payments: %w", err)
	}
	defer rows.Close()

	var out []*models.SubscriptionPayment
	for rows.Next() {
		var (
			p        models.SubscriptionPayment
			intentID sql.NullString
		)
		if err := rows.Scan(&p.InvoiceID, &p.SubscriptionRef, &intentID, &p.AmountPaid, &p.Currency, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription payment: %w", err)
		}
		p.PaymentIntentID = intentID.String
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription payments: %w", err)
	}
	return out, nil
}
