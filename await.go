package vistore

import (
	"context"
	"errors"
	"time"

	"github.com/i2y/vistore/hooks"
	"github.com/i2y/vistore/internal/storage"
	"github.com/i2y/vistore/metrics"
)

// Operation names reported to hooks, metrics and errors.
const (
	OpCreate           = "create"
	OpUpdate           = "update"
	OpUpdateWithLock   = "update_with_lock"
	OpRemove           = "remove"
	OpExists           = "exists"
	OpFind             = "find"
	OpStream           = "stream"
	OpReload           = "reload"
	OpMigrateAll       = "migrate_all"
	OpMigrateInstances = "migrate_instances"
)

type result[R any] struct {
	val R
	err error
}

// await issues fn on its own goroutine and waits at most cfg.queryTimeout for
// it. On expiry the wait is abandoned; the statement is cancelled through its
// context but may still have taken effect. Errors are classified into the
// package error types.
func await[R any](ctx context.Context, core *storeCore, op, id string, fn func(context.Context) (R, error)) (R, error) {
	start := time.Now()
	ctx = core.cfg.hooks.OnOperationStart(ctx, hooks.OperationStartInfo{
		Operation:  op,
		Definition: core.def.String(),
		InstanceID: id,
		StartTime:  start,
	})

	opCtx, cancel := context.WithTimeout(ctx, core.cfg.queryTimeout)
	defer cancel()

	done := make(chan result[R], 1)
	go func() {
		v, err := fn(opCtx)
		done <- result[R]{val: v, err: err}
	}()

	var (
		zero R
		res  result[R]
	)
	select {
	case res = <-done:
		if res.err != nil {
			res.err = core.classify(ctx, opCtx, op, id, res.err)
		}
	case <-opCtx.Done():
		res = result[R]{val: zero, err: core.classify(ctx, opCtx, op, id, opCtx.Err())}
	}

	elapsed := time.Since(start)
	core.cfg.recorder.ObserveOperation(op, outcomeOf(res.err), elapsed)
	core.cfg.hooks.OnOperationComplete(ctx, hooks.OperationCompleteInfo{
		Operation:  op,
		Definition: core.def.String(),
		InstanceID: id,
		Duration:   elapsed,
		Error:      res.err,
	})

	if res.err != nil {
		return zero, res.err
	}
	return res.val, nil
}

// classify maps a raw failure to the store error taxonomy. Errors already
// produced by the store pass through unchanged.
func (c *storeCore) classify(ctx, opCtx context.Context, op, id string, err error) error {
	var conflict *OptimisticLockConflictError
	if errors.As(err, &conflict) {
		return err
	}

	// The caller's context ended first: treat it as cancellation.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CancelledError{Operation: op, InstanceID: id, Err: ctxErr}
	}
	if opCtx.Err() != nil {
		c.cfg.logger.Warn("store operation timed out",
			"operation", op,
			"definition", c.def.String(),
			"instance_id", id,
			"timeout", c.cfg.queryTimeout,
		)
		return &TimeoutError{Operation: op, InstanceID: id, Timeout: c.cfg.queryTimeout}
	}

	if errors.Is(err, storage.ErrDuplicateKey) {
		return &DuplicateKeyError{InstanceID: id, Definition: c.def, Err: err}
	}
	return &ConnectivityError{Operation: op, InstanceID: id, Err: err}
}

func outcomeOf(err error) metrics.Outcome {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var (
		conflict  *OptimisticLockConflictError
		dup       *DuplicateKeyError
		timeout   *TimeoutError
		cancelled *CancelledError
	)
	switch {
	case errors.As(err, &conflict):
		return metrics.OutcomeConflict
	case errors.As(err, &dup):
		return metrics.OutcomeDuplicate
	case errors.As(err, &timeout):
		return metrics.OutcomeTimeout
	case errors.As(err, &cancelled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
