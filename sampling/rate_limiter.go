// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps how many observations are kept per second and keeps
// track of the rate it effectively applied over the current and previous
// one-second windows.
type RateLimiter struct {
	limit   int
	limiter *rate.Limiter

	mu          sync.Mutex
	windowStart time.Time
	seen        int64
	allowed     int64
	prevRate    float64
	hasPrev     bool
}

// NewRateLimiter returns a limiter allowing perSecond observations each
// second. A negative perSecond allows everything, zero allows nothing.
func NewRateLimiter(perSecond int) *RateLimiter {
	rl := &RateLimiter{limit: perSecond}
	if perSecond > 0 {
		rl.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return rl
}

// Limit returns the configured per-second cap.
func (r *RateLimiter) Limit() int {
	return r.limit
}

// Allow reports whether one observation may be kept now.
func (r *RateLimiter) Allow() bool {
	return r.AllowAt(time.Now())
}

// AllowAt reports whether one observation may be kept at time t. Calls
// must use non-decreasing times.
func (r *RateLimiter) AllowAt(t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var allowed bool
	switch {
	case r.limit < 0:
		allowed = true
	case r.limit == 0:
		allowed = false
	default:
		allowed = r.limiter.AllowN(t, 1)
	}

	r.account(t, allowed)
	return allowed
}

func (r *RateLimiter) account(t time.Time, allowed bool) {
	if r.windowStart.IsZero() {
		r.windowStart = t
	} else if t.Sub(r.windowStart) >= time.Second {
		r.prevRate = r.windowRate()
		r.hasPrev = true
		r.windowStart = t
		r.seen = 0
		r.allowed = 0
	}

	r.seen++
	if allowed {
		r.allowed++
	}
}

// windowRate returns the keep rate of the current window. An empty window
// counts as a full keep rate.
func (r *RateLimiter) windowRate() float64 {
	if r.seen == 0 {
		return 1.0
	}
	return float64(r.allowed) / float64(r.seen)
}

// EffectiveRate returns the rate the limiter applied, averaging the
// current window with the previous one once a previous window exists.
func (r *RateLimiter) EffectiveRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.windowRate()
	if !r.hasPrev {
		return current
	}
	return (current + r.prevRate) / 2
}
