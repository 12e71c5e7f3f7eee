package chronicle

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the engine updates on every
// operation. A nil-safe zero value is never used directly; construct one
// with [NewMetrics].
type Metrics struct {
	chunksAppended       *prometheus.CounterVec
	uniqueViolations     prometheus.Counter
	rehydrationSeconds   prometheus.Histogram
	branchOps            *prometheus.CounterVec
	registerer           prometheus.Registerer
}

// NewMetrics builds a Metrics instance and, if reg is non-nil, registers
// its collectors. Passing nil is valid: the collectors are still created
// and updated but never exposed, matching how [Config.Logger] defaults to
// a no-op rather than forcing callers to configure observability.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunksAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronicle",
			Name:      "chunks_appended_total",
			Help:      "Chunks appended to the chunk store, by type.",
		}, []string{"cc_type"}),
		uniqueViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronicle",
			Name:      "unique_constraint_violations_total",
			Help:      "Save/undelete attempts rejected by the key index.",
		}),
		rehydrationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chronicle",
			Name:      "rehydration_seconds",
			Help:      "Time spent folding deltas during rehydration.",
			Buckets:   prometheus.DefBuckets,
		}),
		branchOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronicle",
			Name:      "branch_operations_total",
			Help:      "Branch manager operations, by kind.",
		}, []string{"op"}),
		registerer: reg,
	}
	if reg != nil {
		reg.MustRegister(m.chunksAppended, m.uniqueViolations, m.rehydrationSeconds, m.branchOps)
	}
	return m
}

func (m *Metrics) recordChunk(t ccType) {
	if m == nil {
		return
	}
	m.chunksAppended.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) recordUniqueViolation() {
	if m == nil {
		return
	}
	m.uniqueViolations.Inc()
}

func (m *Metrics) observeRehydration(seconds float64) {
	if m == nil {
		return
	}
	m.rehydrationSeconds.Observe(seconds)
}

func (m *Metrics) recordBranchOp(op string) {
	if m == nil {
		return
	}
	m.branchOps.WithLabelValues(op).Inc()
}
