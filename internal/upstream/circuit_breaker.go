package upstream

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by CircuitBreaker.Execute when the breaker is
// open and declining requests.
var ErrCircuitOpen = errors.New("upstream circuit breaker is open")

// breakerState mirrors xg2g's resilience.CircuitBreaker sliding-window
// state machine, simplified to the three states this client needs.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker trips after a run of technical failures within a sliding
// window, refuses calls for a cooldown period, then probes with limited
// half-open traffic before fully closing again. Grounded on xg2g's
// internal/resilience.CircuitBreaker.
type CircuitBreaker struct {
	mu sync.Mutex

	state    breakerState
	openedAt time.Time

	failures    int
	window      time.Duration
	windowStart time.Time

	threshold        int
	successThreshold int
	successes        int
	resetTimeout     time.Duration

	now func() time.Time
}

// NewCircuitBreaker constructs a breaker that opens after threshold
// failures within window, and probes again after resetTimeout.
func NewCircuitBreaker(threshold int, window, resetTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold:        threshold,
		window:           window,
		resetTimeout:     resetTimeout,
		successThreshold: 2,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed, advancing OPEN -> HALF_OPEN once
// the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
			cb.state = breakerHalfOpen
			cb.successes = 0
			return true
		}
		return false
	default: // half-open: allow probes through
		return true
	}
}

// RecordSuccess clears the failure window and, in half-open, advances
// toward closing the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = breakerClosed
			cb.failures = 0
		}
		return
	}
	cb.failures = 0
}

// RecordFailure counts a technical failure toward tripping the breaker; a
// failure while half-open reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.openedAt = cb.now()
		return
	}

	now := cb.now()
	if cb.windowStart.IsZero() || now.Sub(cb.windowStart) > cb.window {
		cb.windowStart = now
		cb.failures = 0
	}
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = breakerOpen
		cb.openedAt = now
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
