package oauth

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts refresh outcomes. A nil *Metrics records nothing.
type Metrics struct {
	refreshes *prometheus.CounterVec
}

// NewMetrics creates the OAuth collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportdesk_oauth_refresh_total",
				Help: "Total number of access token refreshes by outcome",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes)
	}
	return m
}

func (m *Metrics) refreshed(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// Count returns the refresh counter for outcome.
func (m *Metrics) Count(outcome string) prometheus.Counter {
	return m.refreshes.WithLabelValues(outcome)
}
