package metrics

import "time"

// Outcome enumerates operation result categories for counters.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeConflict  Outcome = "conflict"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeError     Outcome = "error"
)

// Recorder defines observability hooks for store metrics. Implementations
// must be safe for concurrent use.
type Recorder interface {
	ObserveOperation(operation string, outcome Outcome, d time.Duration)
	IncConflict(definition string)
	AddMigrated(from, to string, n int64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperation(string, Outcome, time.Duration) {}
func (NoopRecorder) IncConflict(string)                              {}
func (NoopRecorder) AddMigrated(string, string, int64)               {}
