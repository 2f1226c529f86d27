// Package metrics holds the counters an engine reports about its sessions
// and queries. Each engine owns its own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tobsdb/memdb/internal/query"
)

const (
	AccessFullScan   = "full_scan"
	AccessIndex      = "index"
	AccessPrimaryKey = "primary_key"
)

type Metrics struct {
	Registry *prometheus.Registry

	Commits   prometheus.Counter
	Rollbacks prometheus.Counter
	// failed commits by error kind
	CommitErrors *prometheus.CounterVec
	// staged operations by kind
	Staged *prometheus.CounterVec
	// executed queries by access path
	Queries *prometheus.CounterVec
	// rows handed to the predicate by access path
	Candidates *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "memdb_commits_total",
			Help: "Total number of committed transactions",
		}),
		Rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "memdb_rollbacks_total",
			Help: "Total number of rolled back transactions",
		}),
		CommitErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memdb_commit_errors_total",
			Help: "Total number of commits rejected during validation",
		}, []string{"reason"}),
		Staged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memdb_staged_operations_total",
			Help: "Total number of staged row operations",
		}, []string{"operation"}),
		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memdb_queries_total",
			Help: "Total number of executed queries",
		}, []string{"access"}),
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memdb_query_candidates_total",
			Help: "Total number of candidate rows evaluated by queries",
		}, []string{"access"}),
	}
}

// The observe methods are no-ops on a nil *Metrics.

func (m *Metrics) ObserveCommit(err error, reason string) {
	if m == nil {
		return
	}
	if err != nil {
		m.CommitErrors.WithLabelValues(reason).Inc()
		return
	}
	m.Commits.Inc()
}

func (m *Metrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.Rollbacks.Inc()
}

func (m *Metrics) ObserveStaged(operation string) {
	if m == nil {
		return
	}
	m.Staged.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObservePlan(plan query.Plan) {
	if m == nil {
		return
	}
	access := AccessFullScan
	switch {
	case plan.PrimaryKey:
		access = AccessPrimaryKey
	case !plan.FullScan():
		access = AccessIndex
	}
	m.Queries.WithLabelValues(access).Inc()
	m.Candidates.WithLabelValues(access).Add(float64(plan.Candidates))
}
