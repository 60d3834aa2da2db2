// Package metrics provides metrics collection for store operations.
//
// The store uses NoopRecorder unless a Recorder is injected with
// vistore.WithMetrics, so no nil checks are needed at call sites:
//
//	reg := prometheus.NewRegistry()
//	store := vistore.NewStore(db, def, m, vistore.WithMetrics(metrics.NewPrometheusRecorder(reg)))
package metrics
