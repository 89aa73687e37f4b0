package spotify

import (
	"context"
	"sync"
	"time"
)

// RateLimitInfo describes an active server side rate limit.
type RateLimitInfo struct {
	RetryAfter time.Duration
	Until      time.Time
	DetectedAt time.Time
}

// RateLimitTracker remembers the last 429 so every caller pauses until the
// server's Retry-After has passed, not only the one that got the response.
type RateLimitTracker struct {
	mu   sync.Mutex
	info *RateLimitInfo
	now  func() time.Time
}

// NewRateLimitTracker creates an idle tracker.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{now: time.Now}
}

// Update records a rate limit lasting retryAfterSeconds from now.
func (t *RateLimitTracker) Update(retryAfterSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	d := time.Duration(retryAfterSeconds) * time.Second
	t.info = &RateLimitInfo{RetryAfter: d, Until: now.Add(d), DetectedAt: now}
}

// Info returns a copy of the active limit, or nil once it has expired.
func (t *RateLimitTracker) Info() *RateLimitInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info == nil {
		return nil
	}
	if !t.now().Before(t.info.Until) {
		t.info = nil
		return nil
	}
	info := *t.info
	return &info
}

// Clear forgets the active limit after a successful call.
func (t *RateLimitTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info = nil
}

// Wait blocks until the active limit, if any, has passed.
func (t *RateLimitTracker) Wait(ctx context.Context) error {
	info := t.Info()
	if info == nil {
		return nil
	}
	timer := time.NewTimer(time.Until(info.Until))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
