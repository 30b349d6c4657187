package transcription

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/lokutor-ai/dictation-engine/internal/clock"
)

// RateLimiter is the minimum-interval pacer described in spec §4.8: each
// call to WaitAndRecord atomically reserves the next available slot and
// sleeps until it. It is built on golang.org/x/time/rate with a single
// token of burst, which gives exactly the "distinct slots spaced by the
// minimum interval" behaviour the spec calls for - rate.Limiter.Reserve()
// is itself an atomic slot reservation. The reservation point is read from
// an injected clock.Clock so slot math is deterministic under test.
type RateLimiter struct {
	clk             clock.Clock
	minimumInterval time.Duration
	limiter         *rate.Limiter
}

// NewRateLimiter creates a RateLimiter enforcing minimumInterval between
// grants, reading the current time from clk. The first call after
// creation waits 0, since the limiter starts with its single burst token
// available.
func NewRateLimiter(clk clock.Clock, minimumInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		clk:             clk,
		minimumInterval: minimumInterval,
		limiter:         rate.NewLimiter(rate.Every(minimumInterval), 1),
	}
}

// WaitAndRecord reserves the next slot and blocks until it arrives.
// Cancellation surfaces promptly as ctx.Err() without advancing the slot
// (the reservation is cancelled so the token is returned to the bucket).
func (r *RateLimiter) WaitAndRecord(ctx context.Context) error {
	now := r.clk.Now()
	reservation := r.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return context.DeadlineExceeded
	}
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.CancelAt(r.clk.Now())
		return ctx.Err()
	}
}

// TimeUntilNextAllowed is a non-reserving query: it peeks at the delay a
// reservation would incur right now, then cancels the reservation so the
// token is returned to the bucket untouched.
func (r *RateLimiter) TimeUntilNextAllowed() time.Duration {
	now := r.clk.Now()
	reservation := r.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	if delay < 0 {
		return 0
	}
	return delay
}
