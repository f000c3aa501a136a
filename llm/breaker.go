package llm

import (
	"sync"
	"time"
)

// BreakerState describes the circuit breaker's current disposition.
type BreakerState string

const (
	// BreakerClosed admits all calls.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects all calls until the open period elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen admits exactly one probe call.
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreakerOptions configure a CircuitBreaker.
type CircuitBreakerOptions struct {
	// FailThreshold is the number of failures within Window that opens
	// the circuit.
	FailThreshold int
	// Window is the sliding window failures are counted in.
	Window time.Duration
	// OpenFor is how long the circuit stays open before admitting a probe.
	OpenFor time.Duration
}

// CircuitBreaker tracks failures per provider and short-circuits calls to
// an unhealthy endpoint. After the open period one half-open probe is
// admitted; its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	mu            sync.Mutex
	failThreshold int
	window        time.Duration
	openFor       time.Duration
	failures      []time.Time
	openUntil     time.Time
	probing       bool
}

// NewCircuitBreaker builds a breaker. Defaults: 5 failures in 60s open the
// circuit for 120s.
func NewCircuitBreaker(optFns ...func(o *CircuitBreakerOptions)) *CircuitBreaker {
	opts := CircuitBreakerOptions{
		FailThreshold: 5,
		Window:        time.Minute,
		OpenFor:       2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &CircuitBreaker{
		failThreshold: opts.FailThreshold,
		window:        opts.Window,
		openFor:       opts.OpenFor,
	}
}

// Allow reports whether a call may proceed. While open it returns false;
// once the open period has elapsed it admits a single probe and returns
// false for everyone else until the probe resolves.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if b.openUntil.IsZero() {
		return true
	}
	if now.Before(b.openUntil) {
		return false
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// RecordSuccess closes the circuit and clears the failure window.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openUntil = time.Time{}
	b.probing = false
	b.failures = nil
}

// RecordFailure counts a failure. A failed half-open probe re-opens the
// circuit for the full period; otherwise the circuit opens once the
// windowed failure count reaches the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if b.probing {
		b.probing = false
		b.openUntil = now.Add(b.openFor)
		b.failures = nil
		return
	}
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)
	if len(b.failures) >= b.failThreshold {
		b.openUntil = now.Add(b.openFor)
		b.failures = nil
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return BreakerClosed
	}
	if time.Now().Before(b.openUntil) {
		return BreakerOpen
	}
	return BreakerHalfOpen
}
