package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v74"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	paymetrics "clubpay/internal/payments/metrics"
	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/platform/sentinel"
	"clubpay/pkg/requestcontext"
)

// ResultFailed is reported when the ledger rejected an authenticated event.
// The provider is still told the event was received; the payload is kept
// for replay.
const ResultFailed Result = "failed"

// Processor runs one callback through verification, storage and dispatch.
type Processor struct {
	verifiers map[Flow]*Verifier
	router    *Router
	store     Store
	logger    *slog.Logger
	metrics   *paymetrics.Metrics
	tracer    trace.Tracer
}

type ProcessorOption func(*Processor)

func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

func WithMetrics(m *paymetrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(router *Router, store Store, verifiers map[Flow]*Verifier, opts ...ProcessorOption) *Processor {
	p := &Processor{
		verifiers: verifiers,
		router:    router,
		store:     store,
		logger:    slog.Default(),
		tracer:    otel.Tracer("clubpay/webhook"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process authenticates payload and applies it. The only error returned is
// ErrInvalidSignature; every other failure is logged, stored and reported as
// ResultFailed.
func (p *Processor) Process(ctx context.Context, flow Flow, payload []byte, signature string) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "webhook.process", trace.WithAttributes(attribute.String("webhook.flow", string(flow))))
	defer span.End()

	verifier, ok := p.verifiers[flow]
	if !ok {
		return "", fmt.Errorf("%w: unknown flow %q", ErrInvalidSignature, flow)
	}
	ev, err := verifier.Verify(payload, signature)
	if err != nil {
		p.outcome(flow, "rejected")
		p.logger.WarnContext(ctx, "webhook signature rejected",
			"flow", flow,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return "", err
	}

	eventType := string(ev.Type)
	ctx = requestcontext.WithEventID(ctx, ev.ID)
	span.SetAttributes(attribute.String("webhook.event_id", ev.ID), attribute.String("webhook.event_type", eventType))
	if p.metrics != nil {
		p.metrics.IncWebhookReceived(string(flow), eventType)
	}

	now := requestcontext.Now(ctx)
	inserted, err := p.store.Save(ctx, &Record{
		EventID:    ev.ID,
		Flow:       flow,
		EventType:  eventType,
		Payload:    payload,
		Status:     StatusReceived,
		ReceivedAt: now,
	})
	if err != nil {
		// Keep going: the ledger is the source of truth, the stored copy is
		// only needed for replay.
		p.logger.ErrorContext(ctx, "failed to store webhook event",
			"event_id", ev.ID,
			"error", err,
		)
	}
	if err == nil && !inserted {
		if prev, findErr := p.store.Find(ctx, ev.ID); findErr == nil && prev.Status != StatusFailed && prev.Status != StatusReceived {
			p.outcome(flow, "duplicate")
			p.logger.InfoContext(ctx, "duplicate webhook event acknowledged",
				"event_id", ev.ID,
				"event_type", eventType,
				"previous_status", prev.Status,
			)
			return prev.resultOf(), nil
		}
	}

	return p.dispatch(ctx, flow, ev), nil
}

// dispatch routes ev and records the outcome on the stored copy.
func (p *Processor) dispatch(ctx context.Context, flow Flow, ev stripe.Event) Result {
	eventType := string(ev.Type)
	result, err := p.router.Dispatch(ctx, flow, ev)
	now := requestcontext.Now(ctx)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		p.logger.ErrorContext(ctx, "webhook handling failed, dead-lettered",
			"event_id", ev.ID,
			"event_type", eventType,
			"flow", flow,
			"error", err,
		)
		p.mark(ctx, ev.ID, StatusFailed, err.Error(), now)
		p.outcome(flow, string(ResultFailed))
		if p.metrics != nil {
			p.metrics.IncDeadLettered()
		}
		return ResultFailed
	}

	status := StatusProcessed
	if result == ResultIgnored {
		status = StatusIgnored
	}
	p.mark(ctx, ev.ID, status, "", now)
	p.outcome(flow, string(result))
	p.logger.InfoContext(ctx, "webhook handled",
		"event_id", ev.ID,
		"event_type", eventType,
		"flow", flow,
		"result", result,
	)
	return result
}

func (p *Processor) mark(ctx context.Context, eventID string, status Status, errMsg string, at time.Time) {
	if err := p.store.MarkResult(ctx, eventID, status, errMsg, at); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		p.logger.ErrorContext(ctx, "failed to record webhook outcome",
			"event_id", eventID,
			"status", status,
			"error", err,
		)
	}
}

func (p *Processor) outcome(flow Flow, outcome string) {
	if p.metrics != nil {
		p.metrics.IncWebhookOutcome(string(flow), outcome)
	}
}

func (r *Record) resultOf() Result {
	switch r.Status {
	case StatusProcessed:
		return ResultProcessed
	case StatusFailed:
		return ResultFailed
	default:
		return ResultIgnored
	}
}

// Replay re-dispatches a stored callback. Stored payloads were verified on
// receipt, so the signature is not checked again.
func (p *Processor) Replay(ctx context.Context, eventID string) (Result, error) {
	rec, err := p.store.Find(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "webhook event not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load webhook event")
	}
	var ev stripe.Event
	if err := json.Unmarshal(rec.Payload, &ev); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "stored webhook payload is unreadable")
	}

	ctx = requestcontext.WithEventID(ctx, ev.ID)
	ctx, span := p.tracer.Start(ctx, "webhook.replay", trace.WithAttributes(attribute.String("webhook.event_id", ev.ID)))
	defer span.End()

	p.logger.InfoContext(ctx, "replaying webhook event",
		"event_id", ev.ID,
		"event_type", rec.EventType,
		"previous_status", rec.Status,
		"attempts", rec.Attempts,
		"admin", requestcontext.AdminSubject(ctx),
	)
	return p.dispatch(ctx, rec.Flow, ev), nil
}

// ReplayFailed replays up to limit dead-lettered events and reports how many
// now succeed and how many still fail.
func (p *Processor) ReplayFailed(ctx context.Context, limit int) (succeeded, failed int, err error) {
	recs, err := p.store.ListFailed(ctx, limit)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list webhook events")
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return succeeded, failed, ctx.Err()
		}
		res, err := p.Replay(ctx, rec.EventID)
		if err != nil || res == ResultFailed {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed, nil
}

func (p *Processor) ListFailed(ctx context.Context, limit int) ([]*Record, error) {
	recs, err := p.store.ListFailed(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list webhook events")
	}
	return recs, nil
}
