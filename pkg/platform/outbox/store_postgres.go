package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "clubpay/pkg/platform/tx"
)

// PostgresStore keeps the outbox in the `outbox` table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, routing_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		e.ID,
		e.AggregateType,
		e.AggregateID,
		e.RoutingKey,
		e.Payload,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ProcessBatch(ctx context.Context, limit int, fn func(ctx context.Context, e Entry) error) (BatchResult, error) {
	var res BatchResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, routing_key, payload, created_at, attempts
		FROM outbox
		WHERE published_at IS NULL AND dead_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return res, fmt.Errorf("claim outbox entries: %w", err)
	}
	var batch []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.RoutingKey, &e.Payload, &e.CreatedAt, &e.Attempts); err != nil {
			rows.Close()
			return res, fmt.Errorf("scan outbox entry: %w", err)
		}
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, fmt.Errorf("iterate outbox entries: %w", err)
	}
	rows.Close()
	res.Claimed = len(batch)

	for _, e := range batch {
		pubErr := fn(ctx, e)
		switch {
		case pubErr == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE outbox SET published_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`,
				e.ID, time.Now(),
			); err != nil {
				return BatchResult{}, fmt.Errorf("mark outbox entry published: %w", err)
			}
			res.Published++
		case IsParked(pubErr):
			if _, err := tx.ExecContext(ctx,
				`UPDATE outbox SET dead_at = $2, attempts = attempts + 1, last_error = $3 WHERE id = $1`,
				e.ID, time.Now(), pubErr.Error(),
			); err != nil {
				return BatchResult{}, fmt.Errorf("park outbox entry: %w", err)
			}
			res.Parked++
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
				e.ID, pubErr.Error(),
			); err != nil {
				return BatchResult{}, fmt.Errorf("record outbox failure: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return BatchResult{}, fmt.Errorf("commit outbox batch: %w", err)
			}
			return res, fmt.Errorf("publish outbox entry %s: %w", e.ID, pubErr)
		}
	}
	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("commit outbox batch: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return n, nil
}

// DeletePublished removes entries published before cutoff.
func (s *PostgresStore) DeletePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete published outbox entries: %w", err)
	}
	return res.RowsAffected()
}
