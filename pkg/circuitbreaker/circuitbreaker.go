package circuitbreaker

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// Closed admits requests and counts consecutive failures.
	Closed State = iota
	// Open rejects requests until the cool-down timeout passes.
	Open
	// HalfOpen admits trial requests to probe recovery.
	HalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// CircuitBreaker trips after a number of consecutive failures and closes
// again after enough successes while half-open.
type CircuitBreaker struct {
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration

	failures  uint32
	successes uint32
	openedAt  time.Time
	state     State
	mu        sync.Mutex
}

// New creates a CircuitBreaker. failureThreshold consecutive failures open
// the circuit; after timeout it half-opens; successThreshold consecutive
// successes while half-open close it again.
func New(failureThreshold, successThreshold uint32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a request may proceed. It transitions Open to
// HalfOpen once the cool-down has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == Open && time.Since(cb.openedAt) > cb.timeout {
		cb.state = HalfOpen
		cb.successes = 0
	}
	return cb.state != Open
}

// Report feeds the outcome of an admitted request back into the breaker.
func (cb *CircuitBreaker) Report(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		switch cb.state {
		case HalfOpen:
			cb.successes++
			if cb.successes >= cb.successThreshold {
				cb.state = Closed
				cb.failures = 0
				cb.successes = 0
			}
		case Closed:
			cb.failures = 0
		}
		return
	}

	switch cb.state {
	case HalfOpen:
		cb.trip()
	case Closed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = Open
	cb.openedAt = time.Now()
	cb.failures = 0
	cb.successes = 0
}
