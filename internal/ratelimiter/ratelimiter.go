// Package ratelimiter throttles requests with token buckets.
//
// RateLimiter wraps a single golang.org/x/time/rate limiter. Keyed keeps one
// limiter per key (a username, a client address) in a bounded LRU so an
// attacker cycling through keys cannot grow memory without limit.
package ratelimiter

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket limiter.
//
// Tokens refill at a constant rate up to the burst capacity. Each Allow call
// takes one token or fails immediately.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Parameters:
//   - perSecond: Sustained rate in tokens per second; fractional rates are
//     allowed (0.1 is one token every ten seconds)
//   - burst: Bucket capacity
//
// A perSecond of zero or less disables limiting.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow takes a token if one is available and reports whether it did.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowAt is Allow evaluated at t. Used by tests to control the clock.
func (r *RateLimiter) AllowAt(t time.Time) bool {
	return r.limiter.AllowN(t, 1)
}
