// Package retry waits on a dependency with capped exponential backoff.
// The worker uses it only while bootstrapping, to wait for PostgreSQL and
// Redis; request paths never retry.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth another attempt. Do returns the
// unwrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff is a retry policy.
type Backoff struct {
	// Attempts counts the first call. Values below 1 mean a single call.
	Attempts int

	// Initial is the first wait; each following wait doubles up to Max.
	Initial time.Duration
	Max     time.Duration

	// Jitter moves each wait by up to ±Jitter of itself.
	Jitter float64

	// OnRetry runs before every wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ConnectBackoff is the startup policy for external dependencies.
func ConnectBackoff(attempts int, onRetry func(attempt int, err error, delay time.Duration)) Backoff {
	return Backoff{
		Attempts: attempts,
		Initial:  500 * time.Millisecond,
		Max:      10 * time.Second,
		Jitter:   0.2,
		OnRetry:  onRetry,
	}
}

// Do calls op until it succeeds, fails permanently, runs out of attempts or
// ctx ends. On failure it returns the last error op produced, or ctx's error
// if op never ran.
func Do[T any](ctx context.Context, b Backoff, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if attempt >= b.Attempts {
			return zero, err
		}

		delay := b.delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
}

// delay is the wait after the given failed attempt.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (rand.Float64()*2 - 1))
	}
	if d < 0 {
		d = 0
	}
	return d
}
