package outbox

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PublishFunc delivers one entry to the broker. It must return only after the
// broker has durably accepted the message.
type PublishFunc func(ctx context.Context, e Entry) error

// Relay drains the outbox into the broker. It wakes on notifications (one per
// committed insert) and polls as a fallback, so a lost notification delays an
// event by at most one poll interval.
type Relay struct {
	store       Store
	publish     PublishFunc
	wake        <-chan struct{}
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

type RelayOption func(*Relay)

// WithWakeChannel wakes the relay early, e.g. from a LISTEN/NOTIFY listener.
func WithWakeChannel(ch <-chan struct{}) RelayOption {
	return func(r *Relay) { r.wake = ch }
}

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxAttempts parks entries that failed to publish n times so they stop
// blocking the entries behind them. Zero or less never parks.
func WithMaxAttempts(n int) RelayOption {
	return func(r *Relay) { r.maxAttempts = n }
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(store Store, publish PublishFunc, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publish:   publish,
		interval:    2 * time.Second,
		batchSize:   100,
		maxAttempts: 10,
		logger:      slog.Default(),
		tracer:      otel.Tracer("clubpay/outbox"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started",
		"poll_interval", r.interval,
		"batch_size", r.batchSize,
	)
	for {
		r.Drain(ctx)
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Drain publishes batches until the outbox is empty or a publish fails. It
// returns the number of entries published.
func (r *Relay) Drain(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		res, err := r.store.ProcessBatch(ctx, r.batchSize, r.publishOne)
		total += res.Published
		if err != nil {
			r.logger.WarnContext(ctx, "outbox publish failed, will retry",
				"error", err,
				"published", res.Published,
			)
			break
		}
		if res.Claimed < r.batchSize {
			break
		}
	}
	if r.metrics != nil {
		if pending, err := r.store.Pending(ctx); err == nil {
			r.metrics.SetPending(pending)
		}
	}
	return total
}

func (r *Relay) publishOne(ctx context.Context, e Entry) error {
	ctx, span := r.tracer.Start(ctx, "outbox.publish",
		trace.WithAttributes(
			attribute.String("outbox.id", e.ID.String()),
			attribute.String("outbox.routing_key", e.RoutingKey),
		),
	)
	defer span.End()

	if err := r.publish(ctx, e); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		if r.metrics != nil {
			r.metrics.IncPublishFailures(e.RoutingKey)
		}
		if !IsParked(err) && r.maxAttempts > 0 && e.Attempts+1 >= r.maxAttempts {
			err = Park(err)
		}
		if IsParked(err) {
			if r.metrics != nil {
				r.metrics.IncParked(e.RoutingKey)
			}
			r.logger.ErrorContext(ctx, "outbox entry parked",
				"outbox_id", e.ID.String(),
				"routing_key", e.RoutingKey,
				"attempts", e.Attempts+1,
				"error", err,
			)
		}
		return err
	}
	if r.metrics != nil {
		r.metrics.IncPublished(e.RoutingKey)
		r.metrics.ObserveLag(time.Since(e.CreatedAt))
	}
	r.logger.DebugContext(ctx, "outbox entry published",
		"outbox_id", e.ID.String(),
		"routing_key", e.RoutingKey,
		"attempt", e.Attempts+1,
	)
	return nil
}
