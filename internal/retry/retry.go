// Package retry executes operations with category-aware retries and
// exponential backoff.
//
// DESIGN: The coordinator owns no goroutines. Backoff waits are timer-based
// and select against the caller's context, so many executions can be in
// flight concurrently and cancellation interrupts a sleeping retry
// immediately. The last observed error is returned unchanged so callers can
// still classify it.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storelane/graphmeter/internal/apierrors"
)

// Policy controls retry behavior. Zero-value MaxRetries means a single
// attempt with no retries. Policies are immutable once built.
type Policy struct {
	MaxRetries          int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	BackoffFactor       float64
	RetryableCategories map[apierrors.Category]bool
}

// DefaultPolicy retries transient failures: network faults, rate limiting,
// and upstream server errors.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
		RetryableCategories: map[apierrors.Category]bool{
			apierrors.CategoryNetwork:   true,
			apierrors.CategoryRateLimit: true,
			apierrors.CategoryServer:    true,
		},
	}
}

// Retryable reports whether a failure category qualifies for another attempt.
func (p Policy) Retryable(cat apierrors.Category) bool {
	return p.RetryableCategories[cat]
}

// Delay computes the backoff before retrying after the given zero-based
// attempt: min(InitialDelay * BackoffFactor^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	d := float64(p.InitialDelay) * math.Pow(factor, float64(attempt))
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && (d > max || d < 0) {
		d = max
	}
	return time.Duration(d)
}

// Do invokes op until it succeeds, the policy is exhausted, the failure is
// not retryable, or ctx is cancelled. Cancellation is propagated, never
// treated as retryable.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		category := apierrors.Classify(err)
		if !policy.Retryable(category) || attempt == attempts-1 {
			return zero, lastErr
		}

		delay := policy.Delay(attempt)
		log.Debug().
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Str("category", string(category)).
			Dur("delay", delay).
			Msg("retrying after transient failure")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
