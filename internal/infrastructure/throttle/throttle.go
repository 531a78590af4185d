// Package throttle paces the batch runner between students.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a throttle backed by a token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// FixedDelay spaces calls at least d apart. The first call passes at once.
// A non-positive d disables waiting.
func FixedDelay(d time.Duration) *Limiter {
	if d <= 0 {
		return None()
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(d), 1)}
}

// None never waits. It still honours context cancellation.
func None() *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
}

// Wait blocks until the next call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.limiter.Wait(ctx)
}
