// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultBackoff is the base delay between attempts when a Policy leaves
// Backoff unset. Tests override this to avoid real sleeps.
var DefaultBackoff = time.Second

// Policy bounds one logical external call.
type Policy struct {
	// MaxAttempts includes the first call. Zero means 3.
	MaxAttempts int

	// Timeout applies to each attempt separately. Zero means no per-attempt limit.
	Timeout time.Duration

	// Backoff is the base delay; attempt n waits Backoff * 2^(n-1).
	Backoff time.Duration

	// OnRetry is called before each retry with the failed attempt number.
	OnRetry func(attempt int, err error)
}

// Call runs fn under p, retrying with exponential backoff. An attempt that
// exceeds its timeout yields an error matching context.DeadlineExceeded.
// Cancellation of ctx stops retrying immediately.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt-1, lastErr)
			}
			wait := time.Duration(math.Pow(2, float64(attempt-2))) * p.Backoff
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
		}

		val, err := runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	val, err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", context.DeadlineExceeded, timeout, err)
	}
	return val, err
}
