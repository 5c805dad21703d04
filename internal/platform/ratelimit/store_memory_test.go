package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore()
	s.store.now = func() time.Time { return s.now }
}

func (s *InMemoryStoreSuite) TestAllowsUpToLimit() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := s.store.Allow(ctx, "contact:1.2.3.4", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
		s.now = s.now.Add(time.Second)
	}

	res, err := s.store.Allow(ctx, "contact:1.2.3.4", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(time.Date(2026, 5, 2, 12, 1, 0, 0, time.UTC), res.ResetAt)
	s.Equal(57, res.RetryAfter(s.now))
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	_, _ = s.store.Allow(ctx, "k", 2, time.Minute)
	s.now = s.now.Add(30 * time.Second)
	_, _ = s.store.Allow(ctx, "k", 2, time.Minute)

	res, _ := s.store.Allow(ctx, "k", 2, time.Minute)
	s.False(res.Allowed)

	s.now = s.now.Add(31 * time.Second)
	res, _ = s.store.Allow(ctx, "k", 2, time.Minute)
	s.True(res.Allowed, "first request left the window")
	s.Equal(0, res.Remaining)
}

func (s *InMemoryStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	res, _ := s.store.Allow(ctx, "a", 1, time.Minute)
	s.True(res.Allowed)
	res, _ = s.store.Allow(ctx, "b", 1, time.Minute)
	s.True(res.Allowed)
	res, _ = s.store.Allow(ctx, "a", 1, time.Minute)
	s.False(res.Allowed)
}

func (s *InMemoryStoreSuite) TestSweepDropsIdleKeys() {
	_, _ = s.store.Allow(context.Background(), "a", 5, time.Minute)
	s.now = s.now.Add(2 * time.Minute)
	s.store.Sweep(time.Minute)
	s.Empty(s.store.windows)
}
