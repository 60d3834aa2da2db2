// Package retry provides backoff policies for callers that retry store
// operations, typically read-modify-write cycles that lose an optimistic
// lock race. The store itself never retries.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy decides whether and when another attempt is made.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// 0 means no limit.
	MaxAttempts int

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration

	// Multiplier is the factor by which the interval grows per attempt.
	Multiplier float64

	// Jitter spreads the delay: 0.5 yields a delay in [d*0.5, d*1.5].
	// Concurrent writers contending for the same instance should use jitter
	// so they do not collide again on the next attempt.
	Jitter float64

	// RetryIf restricts retries to matching errors. Nil retries every error.
	RetryIf func(error) bool
}

// DefaultPolicy returns a policy suited to optimistic lock contention:
// five attempts starting at 10ms with jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		Jitter:          0.5,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() *Policy {
	return &Policy{
		MaxAttempts: 1,
	}
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(maxAttempts int, interval time.Duration) *Policy {
	return &Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: interval,
		MaxInterval:     interval,
		Multiplier:      1.0,
	}
}

// Exponential returns an exponential backoff policy with jitter.
func Exponential(maxAttempts int, initial, max time.Duration, multiplier float64) *Policy {
	return &Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		Jitter:          0.5,
	}
}

// ShouldRetry reports whether another attempt is allowed after attempts
// attempts ended with err.
func (p *Policy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return true
}

// Delay returns the wait before the attempt following attempts.
func (p *Policy) Delay(attempts int) time.Duration {
	if attempts <= 1 {
		return p.jitter(p.InitialInterval)
	}

	delay := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempts-1))
	if p.MaxInterval > 0 && delay > float64(p.MaxInterval) {
		delay = float64(p.MaxInterval)
	}
	return p.jitter(time.Duration(delay))
}

// Wait sleeps for Delay(attempts) or until ctx ends.
func (p *Policy) Wait(ctx context.Context, attempts int) error {
	d := p.Delay(attempts)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Policy) jitter(delay time.Duration) time.Duration {
	if p.Jitter == 0 {
		return delay
	}
	factor := 1.0 + p.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * factor)
}
