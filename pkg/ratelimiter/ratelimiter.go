package ratelimiter

// RateLimiter is the interface for rate limiting. Allow returns true if
// the request may proceed, false if it should be rejected.
type RateLimiter interface {
	Allow() bool
}
