package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"clubpay/internal/broker"
)

type consumer struct {
	queue   string
	handler broker.Handler
	client  *kgo.Client
	b       *Broker
}

func (b *Broker) newConsumer(queue string, h broker.Handler) (*consumer, error) {
	topics := b.topology.TopicsFor(queue)
	if len(topics) == 0 {
		return nil, fmt.Errorf("queue %s has no topics", queue)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ClientID(b.cfg.ClientID+"-"+queue),
		kgo.ConsumerGroup(queue),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", queue, err)
	}
	return &consumer{queue: queue, handler: h, client: client, b: b}, nil
}

func (c *consumer) run(ctx context.Context) error {
	logger := c.b.logger.With("queue", c.queue)
	logger.InfoContext(ctx, "consumer started", "topics", c.b.topology.TopicsFor(c.queue))

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return nil
			}
			logger.WarnContext(ctx, "fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		var procErr error
		fetches.EachRecord(func(rec *kgo.Record) {
			if procErr != nil {
				return
			}
			procErr = c.process(ctx, rec)
		})
		c.client.AllowRebalance()
		if procErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return procErr
		}
	}
}

// process handles one record and commits its offset once it was either
// handled or parked on the dead-letter topic. A failure to park leaves the
// offset uncommitted so the record is redelivered after restart.
func (c *consumer) process(ctx context.Context, rec *kgo.Record) error {
	msg := fromRecord(c.b.topology, rec)
	err := broker.Deliver(ctx, c.queue, c.handler, msg, c.b.policy, c.b.logger, c.b.metrics)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if dlqErr := c.deadLetter(ctx, rec, msg, err); dlqErr != nil {
			return dlqErr
		}
	}
	if err := c.client.CommitRecords(ctx, rec); err != nil {
		return fmt.Errorf("commit %s/%d@%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	return nil
}

func (c *consumer) deadLetter(ctx context.Context, rec *kgo.Record, msg broker.Message, cause error) error {
	dlq := &kgo.Record{
		Topic:     broker.DeadLetterTopic(c.queue),
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
		Headers: append(append([]kgo.RecordHeader(nil), rec.Headers...),
			kgo.RecordHeader{Key: broker.HeaderLastError, Value: []byte(cause.Error())},
			kgo.RecordHeader{Key: "source-topic", Value: []byte(rec.Topic)},
		),
	}
	if err := c.client.ProduceSync(ctx, dlq).FirstErr(); err != nil {
		return fmt.Errorf("dead-letter %s: %w", msg.ID, err)
	}
	c.b.metrics.IncDeadLettered(c.queue)
	c.b.logger.ErrorContext(ctx, "message dead-lettered",
		"queue", c.queue,
		"message_id", msg.ID,
		"routing_key", msg.RoutingKey,
		"error", cause,
	)
	return nil
}
