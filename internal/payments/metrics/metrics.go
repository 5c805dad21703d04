package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for payment ingestion.
// Tracks webhook outcomes, ledger transitions and critical path durations.
type Metrics struct {
	WebhooksReceived   *prometheus.CounterVec
	WebhookOutcomes    *prometheus.CounterVec
	LedgerTransitions  *prometheus.CounterVec
	LedgerDuplicates   *prometheus.CounterVec
	LedgerDuration     *prometheus.HistogramVec
	CheckoutsCreated   *prometheus.CounterVec
	CheckoutDuration   prometheus.Histogram
	DeadLetteredEvents prometheus.Counter
}

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// New registers payment metrics on reg; nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_webhooks_received_total",
			Help: "Total number of payment webhooks received, by flow and event type",
		}, []string{"flow", "event_type"}),
		WebhookOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_webhook_outcomes_total",
			Help: "Webhook handling outcomes (processed, ignored, failed, rejected)",
		}, []string{"flow", "outcome"}),
		LedgerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_ledger_transitions_total",
			Help: "Ledger state transitions applied, by operation",
		}, []string{"operation"}),
		LedgerDuplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_ledger_duplicates_total",
			Help: "Ledger calls that were no-ops because the change was already applied",
		}, []string{"operation"}),
		LedgerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubpay_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including the transaction",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		CheckoutsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_checkouts_created_total",
			Help: "Checkout sessions created, by kind",
		}, []string{"kind"}),
		CheckoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clubpay_checkout_duration_seconds",
			Help:    "Duration of checkout session creation (provider round trip)",
			Buckets: durationBuckets,
		}),
		DeadLetteredEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "clubpay_webhook_dead_lettered_total",
			Help: "Verified webhook events recorded as failed for replay",
		}),
	}
}

func (m *Metrics) IncWebhookReceived(flow, eventType string) {
	m.WebhooksReceived.WithLabelValues(flow, eventType).Inc()
}

func (m *Metrics) IncWebhookOutcome(flow, outcome string) {
	m.WebhookOutcomes.WithLabelValues(flow, outcome).Inc()
}

// ObserveLedger records one ledger call. Call with time.Now() at the start.
func (m *Metrics) ObserveLedger(operation string, start time.Time, transitioned bool) {
	m.LedgerDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if transitioned {
		m.LedgerTransitions.WithLabelValues(operation).Inc()
	} else {
		m.LedgerDuplicates.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) IncCheckoutCreated(kind string) {
	m.CheckoutsCreated.WithLabelValues(kind).Inc()
}

// ObserveCheckout records the duration of a checkout creation.
func (m *Metrics) ObserveCheckout(start time.Time) {
	m.CheckoutDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncDeadLettered() {
	m.DeadLetteredEvents.Inc()
}
