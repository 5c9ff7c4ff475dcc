package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a weight-aware token bucket. A request consumes as many
// tokens as its documented weight, so heavy endpoints drain the budget
// faster than cheap ones.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter that refills rps tokens per second with the
// given burst capacity. A burst below one is raised to one.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until weight tokens are available or the context is
// cancelled. A weight below one counts as one; a weight larger than
// the burst consumes the whole bucket.
func (l *Limiter) Wait(ctx context.Context, weight int) error {
	return l.bucket.WaitN(ctx, l.clamp(weight))
}

// Allow reports whether weight tokens are available right now and
// consumes them if so.
func (l *Limiter) Allow(weight int) bool {
	return l.bucket.AllowN(time.Now(), l.clamp(weight))
}

func (l *Limiter) clamp(weight int) int {
	if weight < 1 {
		return 1
	}
	if burst := l.bucket.Burst(); weight > burst {
		return burst
	}
	return weight
}
