// Package outbox implements the transactional outbox: events are written in the
// same database transaction as the state change that produced them, and a relay
// publishes them to the broker afterwards.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry is one pending, published or parked event. DeadAt is set once the
// entry is parked; parked entries are never claimed again.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	RoutingKey    string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	DeadAt        *time.Time
	Attempts      int
	LastError     string
}

// BatchResult summarises one ProcessBatch call.
type BatchResult struct {
	Claimed   int
	Published int
	Parked    int
}

// Store persists outbox entries.
type Store interface {
	// Append writes an entry, joining the transaction carried by ctx if any.
	Append(ctx context.Context, entry Entry) error
	// ProcessBatch hands up to limit unpublished, unparked entries, oldest
	// first, to fn. Entries for which fn returns nil are marked published. An
	// error wrapped by Park parks the entry and the batch goes on; any other
	// error is recorded on the entry and stops the batch.
	ProcessBatch(ctx context.Context, limit int, fn func(ctx context.Context, e Entry) error) (BatchResult, error)
	// Pending counts entries still waiting to be published.
	Pending(ctx context.Context) (int, error)
}

type parkError struct{ err error }

func (e *parkError) Error() string { return e.err.Error() }
func (e *parkError) Unwrap() error { return e.err }

// Park marks a publish error as final for its entry.
func Park(err error) error {
	if err == nil {
		return nil
	}
	return &parkError{err: err}
}

// IsParked reports whether err was wrapped by Park.
func IsParked(err error) bool {
	var pe *parkError
	return errors.As(err, &pe)
}
