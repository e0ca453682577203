// Package metrics provides Prometheus collectors for the ledger engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Write path
	EventsApplied *prometheus.CounterVec
	ApplyErrors   *prometheus.CounterVec
	LockWait      prometheus.Histogram

	// Read path
	CacheLookups *prometheus.CounterVec
	CacheErrors  *prometheus.CounterVec
	Recomputes   prometheus.Counter

	// Reconciliation
	VerifyRuns               *prometheus.CounterVec
	ReconciliationMismatches prometheus.Counter
	FlaggedAccounts          prometheus.Gauge
}

// NewMetrics registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "ledger"
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_applied_total",
			Help:      "Ledger events committed, by kind",
		}, []string{"kind"}),
		ApplyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "apply_errors_total",
			Help:      "Rejected or failed applies, by error class",
		}, []string{"class"}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring account locks",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Balance cache lookups, by result",
		}, []string{"result"}),
		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Balance cache failures, by operation",
		}, []string{"op"}),
		Recomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "recomputes_total",
			Help:      "Balance replays from the event log",
		}),
		VerifyRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "verify_runs_total",
			Help:      "Account verifications, by status",
		}, []string{"status"}),
		ReconciliationMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "mismatches_total",
			Help:      "Verifications that found a discrepancy",
		}),
		FlaggedAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "flagged_accounts",
			Help:      "Accounts flagged for operator review",
		}),
	}
}

func (m *Metrics) EventApplied(kind string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) ApplyError(class string) {
	if m == nil {
		return
	}
	m.ApplyErrors.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

// CacheLookup records "hit", "miss" or "bypass".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Recompute() {
	if m == nil {
		return
	}
	m.Recomputes.Inc()
}

func (m *Metrics) Verified(status string) {
	if m == nil {
		return
	}
	m.VerifyRuns.WithLabelValues(status).Inc()
	if status == "mismatch" {
		m.ReconciliationMismatches.Inc()
	}
}

func (m *Metrics) SetFlagged(n int) {
	if m == nil {
		return
	}
	m.FlaggedAccounts.Set(float64(n))
}
