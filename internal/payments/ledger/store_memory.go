package ledger

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"clubpay/internal/payments/models"
	"clubpay/pkg/platform/sentinel"
)

// InMemoryStore is a TxStore for tests and development. Transactions are
// serialised by a mutex and staged on a copy of the state that replaces the
// original only when fn succeeds.
type InMemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	donations     map[string]models.Donation
	subscriptions map[uuid.UUID]models.Subscription
	byExternalID  map[string]uuid.UUID
	bySession     map[string]uuid.UUID
	payments      map[string]models.SubscriptionPayment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: memoryState{
		donations:     make(map[string]models.Donation),
		subscriptions: make(map[uuid.UUID]models.Subscription),
		byExternalID:  make(map[string]uuid.UUID),
		bySession:     make(map[string]uuid.UUID),
		payments:      make(map[string]models.SubscriptionPayment),
	}}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := &memoryTx{state: memoryState{
		donations:     maps.Clone(s.state.donations),
		subscriptions: maps.Clone(s.state.subscriptions),
		byExternalID:  maps.Clone(s.state.byExternalID),
		bySession:     maps.Clone(s.state.bySession),
		payments:      maps.Clone(s.state.payments),
	}}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	s.state = staged.state
	return nil
}

// Clear drops all state.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = NewInMemoryStore().state
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) FindDonation(_ context.Context, sessionID string) (*models.Donation, error) {
	d, ok := t.state.donations[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &d, nil
}

func (t *memoryTx) InsertDonation(_ context.Context, d *models.Donation) (bool, error) {
	if _, ok := t.state.donations[d.SessionID]; ok {
		return false, nil
	}
	t.state.donations[d.SessionID] = *d
	return true, nil
}

func (t *memoryTx) UpdateDonation(_ context.Context, d *models.Donation) error {
	if _, ok := t.state.donations[d.SessionID]; !ok {
		return sentinel.ErrNotFound
	}
	t.state.donations[d.SessionID] = *d
	return nil
}

func (t *memoryTx) FindSubscription(_ context.Context, subscriptionID string) (*models.Subscription, error) {
	return t.lookup(t.state.byExternalID, subscriptionID)
}

func (t *memoryTx) FindSubscriptionByCheckoutSession(_ context.Context, sessionID string) (*models.Subscription, error) {
	return t.lookup(t.state.bySession, sessionID)
}

func (t *memoryTx) lookup(index map[string]uuid.UUID, key string) (*models.Subscription, error) {
	if key == "" {
		return nil, sentinel.ErrNotFound
	}
	ref, ok := index[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sub := t.state.subscriptions[ref]
	return &sub, nil
}

func (t *memoryTx) InsertSubscription(_ context.Context, sub *models.Subscription) (bool, error) {
	if _, ok := t.state.subscriptions[sub.ID]; ok {
		return false, nil
	}
	if sub.SubscriptionID != "" {
		if _, ok := t.state.byExternalID[sub.SubscriptionID]; ok {
			return false, nil
		}
	}
	if sub.CheckoutSessionID != "" {
		if _, ok := t.state.bySession[sub.CheckoutSessionID]; ok {
			return false, nil
		}
	}
	t.store(sub)
	return true, nil
}

func (t *memoryTx) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	prev, ok := t.state.subscriptions[sub.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if sub.SubscriptionID != prev.SubscriptionID && sub.SubscriptionID != "" {
		if owner, taken := t.state.byExternalID[sub.SubscriptionID]; taken && owner != sub.ID {
			return sentinel.ErrConflict
		}
	}
	if sub.CheckoutSessionID != prev.CheckoutSessionID && sub.CheckoutSessionID != "" {
		if owner, taken := t.state.bySession[sub.CheckoutSessionID]; taken && owner != sub.ID {
			return sentinel.ErrConflict
		}
	}
	if prev.SubscriptionID != "" && prev.SubscriptionID != sub.SubscriptionID {
		delete(t.state.byExternalID, prev.SubscriptionID)
	}
	if prev.CheckoutSessionID != "" && prev.CheckoutSessionID != sub.CheckoutSessionID {
		delete(t.state.bySession, prev.CheckoutSessionID)
	}
	t.store(sub)
	return nil
}

func (t *memoryTx) store(sub *models.Subscription) {
	t.state.subscriptions[sub.ID] = *sub
	if sub.SubscriptionID != "" {
		t.state.byExternalID[sub.SubscriptionID] = sub.ID
	}
	if sub.CheckoutSessionID != "" {
		t.state.bySession[sub.CheckoutSessionID] = sub.ID
	}
}

func (t *memoryTx) PaymentExists(_ context.Context, invoiceID string) (bool, error) {
	_, ok := t.state.payments[invoiceID]
	return ok, nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p *models.SubscriptionPayment) (bool, error) {
	if _, ok := t.state.payments[p.InvoiceID]; ok {
		return false, nil
	}
	if _, ok := t.state.subscriptions[p.SubscriptionRef]; !ok {
		return false, sentinel.ErrNotFound
	}
	t.state.payments[p.InvoiceID] = *p
	return true, nil
}

func (t *memoryTx) ListPayments(_ context.Context, subscriptionRef uuid.UUID) ([]*models.SubscriptionPayment, error) {
	var out []*models.SubscriptionPayment
	for _, p := range t.state.payments {
		if p.SubscriptionRef == subscriptionRef {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].InvoiceID < out[j].InvoiceID
		}
		return out[i].PaidAt.Before(out[j].PaidAt)
	})
	return out, nil
}
