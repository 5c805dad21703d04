package webhook

import (
	"context"
	"time"
)

// Status of a stored callback.
type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusIgnored   Status = "ignored"
)

// Record is a verified callback kept verbatim. Failed records form the
// dead-letter queue and can be replayed.
type Record struct {
	EventID     string     `json:"event_id"`
	Flow        Flow       `json:"flow"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"-"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Store persists callbacks by provider event id.
type Store interface {
	// Save inserts rec unless the event id is already known; it reports
	// whether a row was inserted.
	Save(ctx context.Context, rec *Record) (bool, error)
	Find(ctx context.Context, eventID string) (*Record, error)
	// MarkResult records the outcome of one processing attempt.
	MarkResult(ctx context.Context, eventID string, status Status, errMsg string, at time.Time) error
	ListFailed(ctx context.Context, limit int) ([]*Record, error)
}
