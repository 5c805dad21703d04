// Package kafka implements the broker on Kafka-compatible clusters with
// franz-go. Routing keys map to durable topics and queues to consumer
// groups; offsets are committed only after a record is handled or parked.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"clubpay/internal/broker"
	"clubpay/internal/platform/config"
	"clubpay/pkg/platform/sentinel"
)

// Broker is the franz-go implementation of broker.Broker.
type Broker struct {
	cfg      config.KafkaConfig
	topology *broker.Topology
	policy   broker.RetryPolicy
	logger   *slog.Logger
	metrics  *broker.Metrics
	producer *kgo.Client

	mu        sync.Mutex
	consumers map[string]broker.Handler
}

type Option func(*Broker)

func WithRetryPolicy(p broker.RetryPolicy) Option {
	return func(b *Broker) { b.policy = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

func WithMetrics(m *broker.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// New creates the producer client. Consumers are created per queue in Run.
func New(cfg config.KafkaConfig, topology *broker.Topology, opts ...Option) (*Broker, error) {
	b := &Broker{
		cfg:       cfg,
		topology:  topology,
		policy:    broker.DefaultRetryPolicy(),
		logger:    slog.Default(),
		consumers: make(map[string]broker.Handler),
	}
	for _, opt := range opts {
		opt(b)
	}

	// acks=all enables the idempotent producer, so client-side retries
	// never duplicate a record within a partition.
	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	b.producer = producer
	return b, nil
}

// Client exposes the producer client for administrative calls.
func (b *Broker) Client() *kgo.Client {
	return b.producer
}

func (b *Broker) Publish(ctx context.Context, msg broker.Message) error {
	if !b.topology.HasRoutingKey(msg.RoutingKey) {
		return broker.Permanent(fmt.Errorf("publish %s: undeclared routing key", msg.RoutingKey))
	}
	rec := toRecord(b.topology.TopicFor(msg.RoutingKey), msg)
	if err := b.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if isRecordTooLarge(err) {
			return broker.Permanent(fmt.Errorf("produce %s: %w", rec.Topic, err))
		}
		return fmt.Errorf("produce %s: %w", rec.Topic, errors.Join(sentinel.ErrUnavailable, err))
	}
	b.metrics.IncPublished(msg.RoutingKey)
	return nil
}

// isRecordTooLarge reports errors no retry of the same record can fix.
func isRecordTooLarge(err error) bool {
	return errors.Is(err, kerr.MessageTooLarge) || errors.Is(err, kerr.RecordListTooLarge)
}

func (b *Broker) Subscribe(queue string, h broker.Handler) error {
	if _, ok := b.topology.Queue(queue); !ok {
		return fmt.Errorf("subscribe %s: %w", queue, sentinel.ErrNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.consumers[queue]; dup {
		return fmt.Errorf("subscribe %s: %w", queue, sentinel.ErrConflict)
	}
	b.consumers[queue] = h
	return nil
}

// Run starts one consumer group per subscribed queue and blocks until ctx is
// cancelled or a consumer fails.
func (b *Broker) Run(ctx context.Context) error {
	b.mu.Lock()
	handlers := make(map[string]broker.Handler, len(b.consumers))
	for q, h := range b.consumers {
		handlers[q] = h
	}
	b.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for queue, h := range handlers {
		c, err := b.newConsumer(queue, h)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer c.client.Close()
			return c.run(ctx)
		})
	}
	return g.Wait()
}

func (b *Broker) Close() error {
	b.producer.Close()
	return nil
}

func toRecord(topic string, msg broker.Message) *kgo.Record {
	headers := make([]kgo.RecordHeader, 0, len(msg.Headers)+2)
	headers = append(headers,
		kgo.RecordHeader{Key: broker.HeaderMessageID, Value: []byte(msg.ID)},
		kgo.RecordHeader{Key: broker.HeaderRoutingKey, Value: []byte(msg.RoutingKey)},
	)
	for k, v := range msg.Headers {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	rec := &kgo.Record{
		Topic:     topic,
		Key:       []byte(msg.Key),
		Value:     msg.Payload,
		Headers:   headers,
		Timestamp: msg.Timestamp,
	}
	return rec
}

func fromRecord(topology *broker.Topology, rec *kgo.Record) broker.Message {
	msg := broker.Message{
		Key:       string(rec.Key),
		Payload:   rec.Value,
		Timestamp: rec.Timestamp,
		Headers:   make(map[string]string, len(rec.Headers)),
	}
	for _, h := range rec.Headers {
		switch h.Key {
		case broker.HeaderMessageID:
			msg.ID = string(h.Value)
		case broker.HeaderRoutingKey:
			msg.RoutingKey = string(h.Value)
		default:
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	if msg.RoutingKey == "" {
		msg.RoutingKey, _ = topology.RoutingKeyFor(rec.Topic)
	}
	if msg.ID == "" {
		// Records produced by other tools: partition/offset is still unique.
		msg.ID = rec.Topic + "/" + strconv.Itoa(int(rec.Partition)) + "/" + strconv.FormatInt(rec.Offset, 10)
	}
	return msg
}
