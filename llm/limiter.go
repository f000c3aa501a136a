package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiterOptions configure a RateLimiter.
type RateLimiterOptions struct {
	// Window is the sliding window the limit applies to.
	Window time.Duration
}

// RateLimiter admits at most limit calls in any sliding window. Acquire
// blocks until a slot frees up, the ctx is done, or the max wait elapses.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewRateLimiter creates a limiter admitting limit calls per window
// (default one minute). A non-positive limit disables limiting.
func NewRateLimiter(limit int, optFns ...func(o *RateLimiterOptions)) *RateLimiter {
	opts := RateLimiterOptions{Window: time.Minute}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RateLimiter{limit: limit, window: opts.Window}
}

// Acquire blocks until a slot is available and claims it. It returns
// ErrAcquireTimeout when the next slot would not free up within maxWait,
// and ctx.Err() on cancellation. A zero maxWait means wait indefinitely.
func (l *RateLimiter) Acquire(ctx context.Context, maxWait time.Duration) error {
	if l.limit <= 0 {
		return nil
	}
	var deadline time.Time
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)
		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if !deadline.IsZero() && now.Add(wait).After(deadline) {
			return fmt.Errorf("%w (next slot in %s)", ErrAcquireTimeout, wait)
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

// InWindow returns how many calls are currently counted in the window.
func (l *RateLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(time.Now())
	return len(l.stamps)
}

// prune drops timestamps that aged out. Caller holds the lock.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
