package notification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbound mail and the directory dependency. Methods are
// safe on a nil receiver.
type Metrics struct {
	Sends             *prometheus.CounterVec
	Skipped           *prometheus.CounterVec
	SendDuration      *prometheus.HistogramVec
	FanoutRecipients  *prometheus.HistogramVec
	DirectoryRequests *prometheus.HistogramVec
	DirectoryCircuit  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_notification_sends_total",
			Help: "Outbound mail attempts, by kind and outcome (sent, failed)",
		}, []string{"kind", "outcome"}),
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_notification_skipped_total",
			Help: "Notifications not sent, by kind and reason",
		}, []string{"kind", "reason"}),
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubpay_notification_send_duration_seconds",
			Help:    "Duration of one outbound mail send",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		FanoutRecipients: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubpay_notification_fanout_recipients",
			Help:    "Recipients resolved per fan-out message",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"kind"}),
		DirectoryRequests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubpay_directory_request_duration_seconds",
			Help:    "Subscriber directory lookups, by outcome (ok, error, circuit_open)",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		DirectoryCircuit: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clubpay_directory_circuit_open",
			Help: "1 while the directory circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncSend(kind, outcome string) {
	if m != nil {
		m.Sends.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncSkipped(kind, reason string) {
	if m != nil {
		m.Skipped.WithLabelValues(kind, reason).Inc()
	}
}

func (m *Metrics) ObserveSend(kind string, start time.Time) {
	if m != nil {
		m.SendDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveFanout(kind string, recipients int) {
	if m != nil {
		m.FanoutRecipients.WithLabelValues(kind).Observe(float64(recipients))
	}
}

// ObserveDirectory records a lookup; a zero start records no latency.
func (m *Metrics) ObserveDirectory(outcome string, start time.Time) {
	if m == nil {
		return
	}
	var d float64
	if !start.IsZero() {
		d = time.Since(start).Seconds()
	}
	m.DirectoryRequests.WithLabelValues(outcome).Observe(d)
}

func (m *Metrics) SetDirectoryCircuit(open bool) {
	if m == nil {
		return
	}
	if open {
		m.DirectoryCircuit.Set(1)
		return
	}
	m.DirectoryCircuit.Set(0)
}
