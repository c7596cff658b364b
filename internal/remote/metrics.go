package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records outcomes of remote calls. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the remote call collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportdesk_remote_requests_total",
				Help: "Total number of requests to the issue tracker by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supportdesk_remote_request_duration_seconds",
				Help:    "Latency of requests to the issue tracker",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(operation string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Count returns the request counter for operation and outcome.
func (m *Metrics) Count(operation, outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(operation, outcome)
}
