package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindow implements RateLimiter by counting requests inside fixed,
// non-overlapping time windows.
type FixedWindow struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	mu          sync.Mutex
}

// NewFixedWindow allows up to limit requests per window.
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:       limit,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow resets the counter when the window has elapsed, then admits the
// request if the count is still under the limit.
func (fw *FixedWindow) Allow() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := time.Now()
	if now.After(fw.windowStart.Add(fw.window)) {
		fw.windowStart = now
		fw.count = 0
	}

	if fw.count < fw.limit {
		fw.count++
		return true
	}
	return false
}
