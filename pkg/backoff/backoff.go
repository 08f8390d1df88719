// Package backoff provides a small, pure retry policy. The vector store
// adapter consumes it for failing upsert sub-batches; keeping the schedule
// separate lets it be tested without any network calls.
package backoff

import (
	"context"
	"time"
)

// Policy describes an exponential backoff schedule. The zero value is not
// usable; construct one with New.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// New builds a Policy, normalizing out-of-range inputs.
func New(maxAttempts int, baseDelay time.Duration, multiplier float64) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if multiplier < 1 {
		multiplier = 2
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Multiplier: multiplier}
}

// Delay returns the wait before attempt n (0-based). Attempt 0 has no
// delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Retry runs fn up to MaxAttempts times, sleeping the scheduled delay
// between attempts. It stops early when fn succeeds, when fn reports the
// error is not retryable, or when the context is done.
func (p Policy) Retry(ctx context.Context, fn func() error, retryable func(error) bool) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return err
}
