package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an outbox for tests and single-process development.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	seq     []uuid.UUID
	// processing serialises ProcessBatch callers the way row locks do.
	processing sync.Mutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[uuid.UUID]*Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = &e
	s.seq = append(s.seq, e.ID)
	return nil
}

func (s *InMemoryStore) ProcessBatch(ctx context.Context, limit int, fn func(ctx context.Context, e Entry) error) (BatchResult, error) {
	s.processing.Lock()
	defer s.processing.Unlock()

	s.mu.Lock()
	var batch []Entry
	for _, id := range s.seq {
		e := s.entries[id]
		if e.PublishedAt != nil || e.DeadAt != nil {
			continue
		}
		batch = append(batch, *e)
		if len(batch) == limit {
			break
		}
	}
	s.mu.Unlock()

	res := BatchResult{Claimed: len(batch)}
	for _, e := range batch {
		err := fn(ctx, e)
		now := time.Now()
		s.mu.Lock()
		stored := s.entries[e.ID]
		stored.Attempts++
		switch {
		case err == nil:
			stored.PublishedAt = &now
			stored.LastError = ""
			res.Published++
		case IsParked(err):
			stored.DeadAt = &now
			stored.LastError = err.Error()
			res.Parked++
		default:
			stored.LastError = err.Error()
			s.mu.Unlock()
			return res, err
		}
		s.mu.Unlock()
	}
	return res, nil
}

func (s *InMemoryStore) Pending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.PublishedAt == nil && e.DeadAt == nil {
			n++
		}
	}
	return n, nil
}

// DeletePublished removes entries published before cutoff.
func (s *InMemoryStore) DeletePublished(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.seq[:0]
	for _, id := range s.seq {
		e := s.entries[id]
		if e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
			delete(s.entries, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.seq = kept
	return n, nil
}

// Entries returns a snapshot in insertion order.
func (s *InMemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.seq))
	for _, id := range s.seq {
		out = append(out, *s.entries[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Clear drops every entry.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[uuid.UUID]*Entry)
	s.seq = nil
}
