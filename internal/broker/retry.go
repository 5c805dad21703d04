package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy bounds consumer-side redelivery before dead-lettering.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 2 * time.Second}
}

// Deliver runs h until it succeeds or the policy is exhausted. Backoff grows
// linearly with the attempt number. The returned error is the last handler
// error, or ctx.Err() if the context ended while waiting.
func Deliver(ctx context.Context, queue string, h Handler, msg Message, policy RetryPolicy, logger *slog.Logger, metrics *Metrics) error {
	attempts := max(policy.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		msg.Attempt = attempt
		start := time.Now()
		err = h.Handle(ctx, msg)
		metrics.ObserveHandle(queue, start)
		if err == nil {
			metrics.IncDelivery(queue, "acked")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.IncDelivery(queue, "failed")
		logger.WarnContext(ctx, "message handler failed",
			"queue", queue,
			"message_id", msg.ID,
			"routing_key", msg.RoutingKey,
			"attempt", attempt,
			"error", err,
		)
		if attempt == attempts || IsPermanent(err) {
			break
		}
		if wait := policy.Backoff * time.Duration(attempt); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return err
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. an undecodable payload.
// Deliver gives up on it after the first attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
