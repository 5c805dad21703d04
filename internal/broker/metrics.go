package broker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published      *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	DeadLettered   *prometheus.CounterVec
	HandleDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_broker_published_total",
			Help: "Messages accepted by the broker by routing key",
		}, []string{"routing_key"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_broker_deliveries_total",
			Help: "Handler invocations by queue and outcome",
		}, []string{"queue", "outcome"}),
		DeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_broker_dead_lettered_total",
			Help: "Messages parked after exhausting retries",
		}, []string{"queue"}),
		HandleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubpay_broker_handle_duration_seconds",
			Help:    "Handler latency by queue",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"queue"}),
	}
}

func (m *Metrics) IncPublished(routingKey string) {
	if m != nil {
		m.Published.WithLabelValues(routingKey).Inc()
	}
}

func (m *Metrics) IncDelivery(queue, outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(queue, outcome).Inc()
	}
}

func (m *Metrics) IncDeadLettered(queue string) {
	if m != nil {
		m.DeadLettered.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) ObserveHandle(queue string, start time.Time) {
	if m != nil {
		m.HandleDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
	}
}
