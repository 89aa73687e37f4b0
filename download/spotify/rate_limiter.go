package spotify

import (
	"context"
	"sync"
	"time"
)

// RateLimiter allows at most maxRequests calls per sliding window.
type RateLimiter struct {
	mu          sync.Mutex
	requests    []time.Time
	maxRequests int
	window      time.Duration
	enabled     bool
}

// NewRateLimiter creates a limiter; a disabled limiter never blocks.
func NewRateLimiter(enabled bool, maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		enabled = false
	}
	return &RateLimiter{maxRequests: maxRequests, window: window, enabled: enabled}
}

// Wait blocks until a request fits in the window or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if !rl.enabled {
		return nil
	}
	for {
		wait := rl.reserve(time.Now())
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a request at now if one fits and returns 0, or returns how
// long until the oldest request leaves the window.
func (rl *RateLimiter) reserve(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	kept := rl.requests[:0]
	for _, t := range rl.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.requests = kept

	if len(rl.requests) < rl.maxRequests {
		rl.requests = append(rl.requests, now)
		return 0
	}
	return rl.window - now.Sub(rl.requests[0])
}

// WaitForRequest lets the limiter be shared with other providers as a general limiter.
func (rl *RateLimiter) WaitForRequest(ctx context.Context) error {
	return rl.Wait(ctx)
}
