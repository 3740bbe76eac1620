package tkvdb

import "github.com/prometheus/client_golang/prometheus"

// Metrics are optional commit/vacuum counters an embedder can register
// with its own prometheus.Registerer. Nil by default (spec.md's §1
// Out-of-scope list names logging/observability as an external
// collaborator's concern, not the engine's) - present here only because
// the retrieval pack's erigon/vechain-thor/Mimir_lite repos all expose
// a prometheus surface over their storage layers, and wiring one in
// costs nothing when unused.
type Metrics struct {
	Commits      prometheus.Counter
	CommitErrors prometheus.Counter
	Vacuums      prometheus.Counter
	GapBytes     prometheus.Gauge
	ArenaBytes   prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics set under namespace
// "tkvdb" on reg. Pass a prometheus.NewRegistry() (or nil to skip
// registration and just hold the collectors unregistered).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tkvdb", Name: "commits_total", Help: "Successful transaction commits.",
		}),
		CommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tkvdb", Name: "commit_errors_total", Help: "Failed transaction commits.",
		}),
		Vacuums: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tkvdb", Name: "vacuums_total", Help: "Completed vacuum runs.",
		}),
		GapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tkvdb", Name: "gap_bytes", Help: "Reclaimable byte span in the database file.",
		}),
		ArenaBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tkvdb", Name: "arena_bytes_used", Help: "Bytes used by the current transaction's arena.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commits, m.CommitErrors, m.Vacuums, m.GapBytes, m.ArenaBytes)
	}
	return m
}
