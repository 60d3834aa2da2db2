package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	operationDuration *prom.HistogramVec
	operationResults  *prom.CounterVec
	conflicts         *prom.CounterVec
	migrated          *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the store metrics on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		operationDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "vistore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations including the database round trip",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		operationResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "vistore",
			Name:      "operation_results_total",
			Help:      "Store operation counts by outcome",
		}, []string{"operation", "outcome"}),
		conflicts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "vistore",
			Name:      "optimistic_lock_conflicts_total",
			Help:      "Locked updates rejected because the version moved or the row is gone",
		}, []string{"definition"}),
		migrated: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "vistore",
			Name:      "migrated_instances_total",
			Help:      "Instances moved between definitions",
		}, []string{"from", "to"}),
	}
	reg.MustRegister(pr.operationDuration, pr.operationResults, pr.conflicts, pr.migrated)
	return pr
}

func (p *PrometheusRecorder) ObserveOperation(operation string, outcome Outcome, d time.Duration) {
	if p == nil {
		return
	}
	p.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	p.operationResults.WithLabelValues(operation, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncConflict(definition string) {
	if p == nil {
		return
	}
	p.conflicts.WithLabelValues(definition).Inc()
}

func (p *PrometheusRecorder) AddMigrated(from, to string, n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.migrated.WithLabelValues(from, to).Add(float64(n))
}
