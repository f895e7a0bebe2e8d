package xgate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing attempts on the client side so that
// well-behaved callers rarely see a 429. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows requests per duration with a burst of requests.
func NewRateLimiter(requests int, duration time.Duration) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(duration/time.Duration(requests)), requests),
	}
}

// Wait blocks until an attempt may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// Allow reports whether an attempt may proceed now without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
