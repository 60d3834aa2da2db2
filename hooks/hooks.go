// Package hooks provides lifecycle hooks for store observability.
package hooks

import (
	"context"
	"time"
)

// StoreHooks defines callbacks for store operations.
// Implement this interface to add observability (logging, tracing, metrics).
type StoreHooks interface {
	// OnOperationStart is called before an operation is issued. The returned
	// context is passed to the database call and to OnOperationComplete.
	OnOperationStart(ctx context.Context, info OperationStartInfo) context.Context
	OnOperationComplete(ctx context.Context, info OperationCompleteInfo)

	// OnConflict is called when a locked update loses the compare-and-swap.
	OnConflict(ctx context.Context, info ConflictInfo)

	// OnMigrate is called after a migration statement succeeds.
	OnMigrate(ctx context.Context, info MigrateInfo)
}

// OperationStartInfo contains information about an operation start.
type OperationStartInfo struct {
	Operation  string
	Definition string
	InstanceID string
	StartTime  time.Time
}

// OperationCompleteInfo contains information about an operation completion.
// Error is nil on success.
type OperationCompleteInfo struct {
	Operation  string
	Definition string
	InstanceID string
	Duration   time.Duration
	Error      error
}

// ConflictInfo contains information about an optimistic lock conflict.
type ConflictInfo struct {
	Definition      string
	InstanceID      string
	ExpectedVersion int64
}

// MigrateInfo contains information about a completed migration.
// Requested is the number of listed ids, or zero for a full migration.
type MigrateInfo struct {
	From      string
	To        string
	Requested int
	Affected  int64
}

// NoOpHooks is a no-operation implementation of StoreHooks.
// Use this as a base for partial implementations.
type NoOpHooks struct{}

func (n *NoOpHooks) OnOperationStart(ctx context.Context, info OperationStartInfo) context.Context {
	return ctx
}
func (n *NoOpHooks) OnOperationComplete(ctx context.Context, info OperationCompleteInfo) {}
func (n *NoOpHooks) OnConflict(ctx context.Context, info ConflictInfo)                   {}
func (n *NoOpHooks) OnMigrate(ctx context.Context, info MigrateInfo)                     {}
