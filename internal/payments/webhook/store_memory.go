package webhook

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"clubpay/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.EventID]; ok {
		return false, nil
	}
	cp := *rec
	cp.Payload = slices.Clone(rec.Payload)
	s.records[rec.EventID] = &cp
	return true, nil
}

func (s *InMemoryStore) Find(_ context.Context, eventID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[eventID]
	if !ok {
		return nil, fmt.Errorf("webhook event %s: %w", eventID, sentinel.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) MarkResult(_ context.Context, eventID string, status Status, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[eventID]
	if !ok {
		return fmt.Errorf("webhook event %s: %w", eventID, sentinel.ErrNotFound)
	}
	rec.Status = status
	rec.Error = errMsg
	rec.Attempts++
	processedAt := at
	rec.ProcessedAt = &processedAt
	return nil
}

func (s *InMemoryStore) ListFailed(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.Status == StatusFailed {
			cp := *rec
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Record) int { return a.ReceivedAt.Compare(b.ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
