package ratelimiter

import (
	"sync"
	"time"
)

// SlidingLog implements RateLimiter by keeping the timestamps of admitted
// requests and counting those inside the trailing window. Exact but O(n)
// in memory, so suited to low-rate routes.
type SlidingLog struct {
	limit  int
	window time.Duration
	log    []time.Time
	mu     sync.Mutex
}

// NewSlidingLog allows up to limit requests within any trailing window.
func NewSlidingLog(limit int, window time.Duration) *SlidingLog {
	return &SlidingLog{
		limit:  limit,
		window: window,
	}
}

// Allow evicts timestamps older than the window, then admits the request
// if the remaining count is under the limit.
func (sl *SlidingLog) Allow() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-sl.window)

	kept := sl.log[:0]
	for _, t := range sl.log {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	sl.log = kept

	if len(sl.log) < sl.limit {
		sl.log = append(sl.log, now)
		return true
	}
	return false
}
