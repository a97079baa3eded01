package permgate

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK              = "ok"
	outcomeFallback        = "fallback"
	outcomeError           = "error"
	outcomeUnauthenticated = "unauthenticated"
	outcomeUnauthorized    = "unauthorized"
	outcomeStale           = "stale"
)

// Metrics counts permission fetch outcomes and guard verdicts. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	fetches *prometheus.CounterVec
	guards  *prometheus.CounterVec
}

// NewMetrics registers the permgate collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permgate",
			Name:      "permission_fetch_total",
			Help:      "Permission refreshes by outcome.",
		}, []string{"outcome"}),
		guards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permgate",
			Name:      "route_guard_total",
			Help:      "Route guard verdicts by state.",
		}, []string{"state"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.fetches, m.guards} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// FetchCounter exposes the fetch counter for inspection.
func (m *Metrics) FetchCounter() *prometheus.CounterVec { return m.fetches }

// GuardCounter exposes the guard counter for inspection.
func (m *Metrics) GuardCounter() *prometheus.CounterVec { return m.guards }

func (m *Metrics) fetch(outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) guard(state GuardState) {
	if m == nil {
		return
	}
	m.guards.WithLabelValues(state.String()).Inc()
}
