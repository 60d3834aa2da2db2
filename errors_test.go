package vistore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "timeout with instance",
			err:  &TimeoutError{Operation: OpFind, InstanceID: "abc-123", Timeout: 10 * time.Second},
			want: "find of instance abc-123 timed out after 10s",
		},
		{
			name: "timeout without instance",
			err:  &TimeoutError{Operation: OpStream, Timeout: time.Second},
			want: "stream timed out after 1s",
		},
		{
			name: "conflict",
			err:  &OptimisticLockConflictError{InstanceID: "abc-123", ExpectedVersion: 0},
			want: "optimistic lock conflict on instance abc-123 (expected version 0)",
		},
		{
			name: "duplicate",
			err:  &DuplicateKeyError{InstanceID: "abc-123", Definition: Versioned("orders", "1.0")},
			want: "instance abc-123 already exists under definition orders@1.0",
		},
		{
			name: "duplicate during migration",
			err:  &DuplicateKeyError{Definition: Unversioned("orders")},
			want: "duplicate instance key under definition orders",
		},
		{
			name: "connectivity",
			err:  &ConnectivityError{Operation: OpUpdate, InstanceID: "abc-123", Err: cause},
			want: "update of instance abc-123 failed: connection refused",
		},
		{
			name: "cancelled",
			err:  &CancelledError{Operation: OpMigrateAll, Err: context.Canceled},
			want: "migrate_all cancelled: context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	conflict := fmt.Errorf("saving order: %w", &OptimisticLockConflictError{InstanceID: "x"})
	assert.True(t, IsOptimisticLockConflict(conflict))
	assert.False(t, IsTimeout(conflict))
	assert.False(t, IsDuplicateKey(conflict))

	timeout := fmt.Errorf("wrapped: %w", &TimeoutError{Operation: OpFind})
	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsOptimisticLockConflict(timeout))

	assert.False(t, IsOptimisticLockConflict(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("driver failure")

	connErr := &ConnectivityError{Operation: OpCreate, InstanceID: "x", Err: cause}
	assert.ErrorIs(t, connErr, cause)

	cancelled := &CancelledError{Operation: OpFind, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, cancelled, context.DeadlineExceeded)

	dup := &DuplicateKeyError{InstanceID: "x", Err: cause}
	assert.ErrorIs(t, dup, cause)

	vanished := fmt.Errorf("%w: x", ErrInstanceVanished)
	require.ErrorIs(t, vanished, ErrInstanceVanished)
}

func TestDefinition(t *testing.T) {
	assert.Equal(t, "orders@1.0", Versioned("orders", "1.0").String())
	assert.Equal(t, "orders", Unversioned("orders").String())
	assert.Equal(t, "orders@null", Versioned("orders", "null").String())

	assert.True(t, Versioned("orders", "").IsVersioned())
	assert.False(t, Unversioned("orders").IsVersioned())

	key := Unversioned("orders").key()
	assert.Nil(t, key.Version)
}

func TestReadModeString(t *testing.T) {
	assert.Equal(t, "read-only", ReadOnly.String())
	assert.Equal(t, "mutable", Mutable.String())
	assert.Equal(t, "ReadMode(7)", ReadMode(7).String())
}
