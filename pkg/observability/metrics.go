// Package observability carries the prometheus instruments of the hybrid
// store. Fire-and-forget work has no caller to report to, so these counters
// (plus the log) are its only failure surface.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Backend label values.
const (
	BackendPrimary = "primary"
	BackendCache   = "cache"
)

// Reconciliation action label values.
const (
	ActionRewrite = "rewrite"
	ActionDelete  = "delete"
)

// Metrics instruments a hybrid session store. Counters work unregistered, so
// a zero-config embedder pays nothing; call MustRegister to expose them.
type Metrics struct {
	// Reconciliations counts cache repairs triggered by divergent reads,
	// labelled by the corrective action taken.
	Reconciliations *prometheus.CounterVec
	// DeferredFailures counts fire-and-forget backend operations that failed
	// after the caller was already unblocked.
	DeferredFailures *prometheus.CounterVec
}

// NewMetrics creates the instrument set.
func NewMetrics() *Metrics {
	return &Metrics{
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tandem_cache_reconciliations_total",
				Help: "Cache corrections applied after a read observed primary/cache divergence.",
			},
			[]string{"action"},
		),
		DeferredFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tandem_deferred_write_failures_total",
				Help: "Backend operations that failed after the caller stopped waiting for them.",
			},
			[]string{"op", "backend"},
		),
	}
}

// MustRegister registers every instrument on the given registerer.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Reconciliations, m.DeferredFailures)
}
