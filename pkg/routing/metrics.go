package routing

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks routing decisions per resolution tier. Registered on an
// injected Registerer so tests and embedders keep isolated registries.
type Metrics struct {
	resolutions *prometheus.CounterVec
}

// NewMetrics creates and registers routing metrics. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbflow",
				Name:      "resolutions_total",
				Help:      "Total routing resolutions by kind and winning precedence tier",
			},
			[]string{"kind", "tier"},
		),
	}
	reg.MustRegister(m.resolutions)
	return m
}

func (m *Metrics) observeResolution(kind, tier string) {
	m.resolutions.WithLabelValues(kind, tier).Inc()
}
