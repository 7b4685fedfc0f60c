// Package metrics exposes Prometheus counters for identity operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics records identity lifecycle outcomes.
type Metrics struct {
	operations *prometheus.CounterVec
}

// New registers the identity collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "operations_total",
			Help:      "Identity lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.operations)
	return m
}

// Observe counts one run of operation. A nil Metrics is a no-op.
func (m *Metrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}
