package vistore

import (
	"context"

	"github.com/i2y/vistore/retry"
)

// RetryOnConflict runs fn until it succeeds, fails with an error other than
// *OptimisticLockConflictError, or policy gives up. fn should re-read the
// instance on every call so it works from the current version.
//
// A nil policy uses retry.DefaultPolicy(). The policy's RetryIf is ignored.
func RetryOnConflict(ctx context.Context, policy *retry.Policy, fn func(ctx context.Context) error) error {
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	p := *policy
	p.RetryIf = IsOptimisticLockConflict

	for attempts := 1; ; attempts++ {
		err := fn(ctx)
		if !p.ShouldRetry(attempts, err) {
			return err
		}
		if waitErr := p.Wait(ctx, attempts); waitErr != nil {
			return err
		}
	}
}
