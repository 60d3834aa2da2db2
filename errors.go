// Package vistore persists opaque instance state of versioned definitions
// with optimistic concurrency control, lazy reload and definition migration.
package vistore

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError indicates that a store operation did not finish within the
// configured query timeout. The outcome on the database is unknown.
type TimeoutError struct {
	Operation  string
	InstanceID string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
	}
	return fmt.Sprintf("%s of instance %s timed out after %v", e.Operation, e.InstanceID, e.Timeout)
}

// IsTimeout returns true if the error is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// OptimisticLockConflictError indicates that a locked update matched no row:
// either the instance no longer exists or another writer advanced its
// version first. Callers recover by re-reading and retrying.
type OptimisticLockConflictError struct {
	InstanceID      string
	ExpectedVersion int64
}

func (e *OptimisticLockConflictError) Error() string {
	return fmt.Sprintf("optimistic lock conflict on instance %s (expected version %d)",
		e.InstanceID, e.ExpectedVersion)
}

// IsOptimisticLockConflict returns true if the error is or wraps an
// OptimisticLockConflictError.
func IsOptimisticLockConflict(err error) bool {
	var conflictErr *OptimisticLockConflictError
	return errors.As(err, &conflictErr)
}

// DuplicateKeyError indicates that an instance with the same id already
// exists under the definition.
type DuplicateKeyError struct {
	InstanceID string
	Definition Definition
	Err        error
}

func (e *DuplicateKeyError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("duplicate instance key under definition %s", e.Definition)
	}
	return fmt.Sprintf("instance %s already exists under definition %s", e.InstanceID, e.Definition)
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// IsDuplicateKey returns true if the error is or wraps a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var dupErr *DuplicateKeyError
	return errors.As(err, &dupErr)
}

// ConnectivityError wraps any other driver or transport failure with the
// operation and instance it happened on.
type ConnectivityError struct {
	Operation  string
	InstanceID string
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s of instance %s failed: %v", e.Operation, e.InstanceID, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// CancelledError indicates that the caller's context ended while waiting for
// a store operation. It unwraps to the context error.
type CancelledError struct {
	Operation  string
	InstanceID string
	Err        error
}

func (e *CancelledError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("%s cancelled: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s of instance %s cancelled: %v", e.Operation, e.InstanceID, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// ErrInstanceVanished is returned by a reloader whose instance row no longer
// exists. It is not recoverable.
var ErrInstanceVanished = errors.New("instance vanished from store")
