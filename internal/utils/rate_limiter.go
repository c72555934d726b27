// internal/utils/rate_limiter.go

package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests against the upstream API and the mirror
// destination. It wraps golang.org/x/time/rate with an interval-style
// constructor, since the configuration expresses pacing as a delay
// between requests rather than a frequency.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter that allows one event per interval.
// A zero or negative interval disables pacing.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next event is permitted or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether an event may proceed right now without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
