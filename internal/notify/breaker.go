package notify

import (
	"sync"
	"time"
)

// Breaker states.
const (
	breakerClosed   = "closed"
	breakerOpen     = "open"
	breakerHalfOpen = "half_open"
)

// Breaker is a per-endpoint circuit breaker. A run of failures opens it;
// after the reset window one probe request is allowed through, and its
// outcome decides whether the circuit closes again.
type Breaker struct {
	mu          sync.Mutex
	state       string
	failures    int
	lastFailure time.Time

	threshold int
	reset     time.Duration
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and probes again after the reset window.
func NewBreaker(threshold int, reset time.Duration) *Breaker {
	return &Breaker{state: breakerClosed, threshold: threshold, reset: reset}
}

// Allow reports whether a request may be attempted now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) > b.reset {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = breakerClosed
}

// RecordFailure counts a failure; the half-open probe failing reopens the
// circuit immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

// State returns the current state string for reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
