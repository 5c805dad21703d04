package tx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "clubpay/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Runner executes a function inside one SQL transaction. The transaction is
// placed in the context handed to fn; it commits when fn returns nil and rolls
// back otherwise.
type Runner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewRunner builds a Runner. A zero timeout uses the default of five seconds,
// applied only when the caller's context has no deadline.
func NewRunner(db *sql.DB, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &Runner{db: db, timeout: timeout}
}

// RunInTx runs fn in a transaction. Nested calls reuse the outer transaction.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
