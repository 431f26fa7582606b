/*
Package metrics registers the Prometheus instruments for the approval and
reconciliation paths. All methods are nil-safe so tests can pass a zero
value and skip registration entirely.
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ApprovalMetrics counts workflow activity.
type ApprovalMetrics struct {
	created *prometheus.CounterVec
	decided *prometheus.CounterVec
}

// NewApprovalMetrics registers the approval counters on the provided registerer.
func NewApprovalMetrics(reg prometheus.Registerer) *ApprovalMetrics {
	if reg == nil {
		return &ApprovalMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_requests_created_total",
		Help: "Approval requests created, by entity type.",
	}, []string{"entity_type"})
	decided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_requests_decided_total",
		Help: "Approval requests resolved, by entity type and decision.",
	}, []string{"entity_type", "decision"})
	reg.MustRegister(created, decided)
	return &ApprovalMetrics{created: created, decided: decided}
}

// IncCreated counts a created request.
func (m *ApprovalMetrics) IncCreated(entityType string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(entityType).Inc()
}

// IncDecided counts a resolved request.
func (m *ApprovalMetrics) IncDecided(entityType, decision string) {
	if m == nil || m.decided == nil {
		return
	}
	m.decided.WithLabelValues(entityType, decision).Inc()
}

// ReconcileMetrics records reconciliation pass outcomes.
type ReconcileMetrics struct {
	duration prometheus.Histogram
	success  prometheus.Counter
	failure  prometheus.Counter
	fixed    prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation instruments on the
// provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_reconcile_duration_seconds",
		Help:    "Duration of ledger reconciliation passes.",
		Buckets: prometheus.DefBuckets,
	})
	success := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_runs_total",
		Help: "Completed reconciliation passes.",
	})
	failure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_failures_total",
		Help: "Failed reconciliation passes.",
	})
	fixed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_fixed_total",
		Help: "Ledger rows fixed by reconciliation.",
	})
	reg.MustRegister(duration, success, failure, fixed)
	return &ReconcileMetrics{duration: duration, success: success, failure: failure, fixed: fixed}
}

// ObserveRun records the outcome of one pass.
func (m *ReconcileMetrics) ObserveRun(d time.Duration, fixed int, err error) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	if err != nil {
		m.failure.Inc()
		return
	}
	m.success.Inc()
	m.fixed.Add(float64(fixed))
}
