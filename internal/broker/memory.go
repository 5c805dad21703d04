package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"clubpay/pkg/platform/sentinel"
)

// MemoryBroker routes messages with the same topology semantics as the Kafka
// backend, inside one process. Queues buffer messages until consumed, so
// publishing before Run does not lose them.
type MemoryBroker struct {
	topology *Topology
	policy   RetryPolicy
	logger   *slog.Logger
	metrics  *Metrics

	mu          sync.Mutex
	queues      map[string]*memoryQueue
	deadLetters map[string][]Message
	closed      bool
}

type memoryQueue struct {
	name    string
	handler Handler
	pending []Message
	signal  chan struct{}
}

type MemoryOption func(*MemoryBroker)

func WithRetryPolicy(p RetryPolicy) MemoryOption {
	return func(b *MemoryBroker) { b.policy = p }
}

func WithLogger(logger *slog.Logger) MemoryOption {
	return func(b *MemoryBroker) { b.logger = logger }
}

func WithMetrics(m *Metrics) MemoryOption {
	return func(b *MemoryBroker) { b.metrics = m }
}

func NewMemory(topology *Topology, opts ...MemoryOption) *MemoryBroker {
	b := &MemoryBroker{
		topology:    topology,
		policy:      DefaultRetryPolicy(),
		logger:      slog.Default(),
		queues:      make(map[string]*memoryQueue, len(topology.Queues)),
		deadLetters: make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, q := range topology.Queues {
		b.queues[q.Name] = &memoryQueue{name: q.Name, signal: make(chan struct{}, 1)}
	}
	return b
}

func (b *MemoryBroker) Publish(ctx context.Context, msg Message) error {
	if !b.topology.HasRoutingKey(msg.RoutingKey) {
		return Permanent(fmt.Errorf("publish %s: undeclared routing key", msg.RoutingKey))
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("publish %s: %w", msg.RoutingKey, sentinel.ErrUnavailable)
	}
	for _, q := range b.topology.QueuesFor(msg.RoutingKey) {
		mq := b.queues[q.Name]
		m := msg
		m.Headers = maps.Clone(msg.Headers)
		mq.pending = append(mq.pending, m)
		select {
		case mq.signal <- struct{}{}:
		default:
		}
	}
	b.metrics.IncPublished(msg.RoutingKey)
	return nil
}

func (b *MemoryBroker) Subscribe(queue string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mq, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("subscribe %s: %w", queue, sentinel.ErrNotFound)
	}
	if mq.handler != nil {
		return fmt.Errorf("subscribe %s: %w", queue, sentinel.ErrConflict)
	}
	mq.handler = h
	return nil
}

// Run consumes every subscribed queue until ctx is cancelled.
func (b *MemoryBroker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	b.mu.Lock()
	for _, mq := range b.queues {
		if mq.handler == nil {
			continue
		}
		wg.Add(1)
		go func(mq *memoryQueue) {
			defer wg.Done()
			b.consume(ctx, mq)
		}(mq)
	}
	b.mu.Unlock()
	wg.Wait()
	return nil
}

func (b *MemoryBroker) consume(ctx context.Context, mq *memoryQueue) {
	for {
		for b.deliverNext(ctx, mq) {
		}
		select {
		case <-ctx.Done():
			return
		case <-mq.signal:
		}
	}
}

// DeliverPending synchronously drains every subscribed queue and returns the
// number of messages handled. Intended for tests and one-shot tools.
func (b *MemoryBroker) DeliverPending(ctx context.Context) int {
	n := 0
	for progressed := true; progressed; {
		progressed = false
		b.mu.Lock()
		queues := make([]*memoryQueue, 0, len(b.queues))
		for _, q := range b.queues {
			if q.handler != nil {
				queues = append(queues, q)
			}
		}
		b.mu.Unlock()
		for _, mq := range queues {
			for b.deliverNext(ctx, mq) {
				n++
				progressed = true
			}
		}
	}
	return n
}

func (b *MemoryBroker) deliverNext(ctx context.Context, mq *memoryQueue) bool {
	if ctx.Err() != nil {
		return false
	}
	b.mu.Lock()
	if len(mq.pending) == 0 {
		b.mu.Unlock()
		return false
	}
	msg := mq.pending[0]
	mq.pending = mq.pending[1:]
	h := mq.handler
	b.mu.Unlock()

	err := Deliver(ctx, mq.name, h, msg, b.policy, b.logger, b.metrics)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Requeue at the head: the message was never acknowledged.
		b.mu.Lock()
		mq.pending = append([]Message{msg}, mq.pending...)
		b.mu.Unlock()
		return false
	default:
		b.deadLetter(ctx, mq.name, msg, err)
	}
	return true
}

func (b *MemoryBroker) deadLetter(ctx context.Context, queue string, msg Message, cause error) {
	msg.Headers = maps.Clone(msg.Headers)
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	msg.Headers[HeaderLastError] = cause.Error()

	b.mu.Lock()
	b.deadLetters[queue] = append(b.deadLetters[queue], msg)
	b.mu.Unlock()

	b.metrics.IncDeadLettered(queue)
	b.logger.ErrorContext(ctx, "message dead-lettered",
		"queue", queue,
		"message_id", msg.ID,
		"routing_key", msg.RoutingKey,
		"error", cause,
	)
}

// DeadLetters returns a copy of the messages parked for queue.
func (b *MemoryBroker) DeadLetters(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.deadLetters[queue]...)
}

// Pending reports queued, not yet handled messages for queue.
func (b *MemoryBroker) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mq, ok := b.queues[queue]; ok {
		return len(mq.pending)
	}
	return 0
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
