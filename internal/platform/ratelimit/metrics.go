package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Denied *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Denied: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "clubpay_rate_limit_denied_total",
			Help: "Requests rejected by a rate limit, by limit name",
		}, []string{"limit"}),
	}
}

func (m *Metrics) IncDenied(name string) {
	if m != nil {
		m.Denied.WithLabelValues(name).Inc()
	}
}
