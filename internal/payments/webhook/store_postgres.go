package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubpay/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, flow, event_type, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, string(rec.Flow), rec.EventType, rec.Payload, string(rec.Status), rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return n == 1, nil
}

const recordColumns = `event_id, flow, event_type, payload, status, error, attempts, received_at, processed_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var (
		rec         Record
		flow        string
		status      string
		errMsg      sql.NullString
		processedAt sql.NullTime
	)
	if err := row.Scan(&rec.EventID, &flow, &rec.EventType, &rec.Payload, &status, &errMsg, &rec.Attempts, &rec.ReceivedAt, &processedAt); err != nil {
		return nil, err
	}
	rec.Flow = Flow(flow)
	rec.Status = Status(status)
	rec.Error = errMsg.String
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	return &rec, nil
}

func (s *PostgresStore) Find(ctx context.Context, eventID string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM webhook_events WHERE event_id = $1`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("webhook event %s: %w", eventID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find webhook event: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) MarkResult(ctx context.Context, eventID string, status Status, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2, error = NULLIF($3, ''), attempts = attempts + 1, processed_at = $4
		WHERE event_id = $1`,
		eventID, string(status), errMsg, at,
	)
	if err != nil {
		return fmt.Errorf("update webhook event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("webhook event %s: %w", eventID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM webhook_events
		WHERE status = 'failed'
		ORDER BY received_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed webhook events: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
