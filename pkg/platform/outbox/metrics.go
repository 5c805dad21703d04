package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Parked          *prometheus.CounterVec
	Lag             prometheus.Histogram
	Pending         prometheus.Gauge
}

// NewMetrics registers outbox metrics on reg; nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_outbox_published_total",
			Help: "Total number of outbox entries published to the broker",
		}, []string{"routing_key"}),
		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_outbox_publish_failures_total",
			Help: "Total number of failed outbox publish attempts",
		}, []string{"routing_key"}),
		Parked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_outbox_parked_total",
			Help: "Total number of outbox entries parked after exhausting publish attempts",
		}, []string{"routing_key"}),
		Lag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clubpay_outbox_publish_lag_seconds",
			Help:    "Time between an outbox insert and its publication",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clubpay_outbox_pending",
			Help: "Unpublished outbox entries after the last drain",
		}),
	}
}

func (m *Metrics) IncPublished(routingKey string) {
	m.Published.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) IncPublishFailures(routingKey string) {
	m.PublishFailures.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) IncParked(routingKey string) {
	m.Parked.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) ObserveLag(d time.Duration) {
	m.Lag.Observe(d.Seconds())
}

func (m *Metrics) SetPending(n int) {
	m.Pending.Set(float64(n))
}
