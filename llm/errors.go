package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAllProvidersExhausted is returned when every provider in the
	// fallback chain was skipped or failed.
	ErrAllProvidersExhausted = errors.New("all llm providers failed")

	// ErrRateLimited marks an upstream 429. The client reacts with a
	// cooldown and immediate fallback instead of in-provider retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrAcquireTimeout is returned by the rate limiter when a slot did
	// not free up within the allowed wait.
	ErrAcquireTimeout = errors.New("rate limiter acquire timed out")

	// ErrCircuitOpen marks a provider skipped because its breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
)

// ProviderError wraps an adapter failure with the provider name and the
// upstream HTTP status, when known.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err represents an upstream rate limit.
func IsRateLimit(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == 429
}

// IsTransient reports whether a failed call is worth retrying on the same
// provider. Context cancellation and rate limits are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsRateLimit(err)
}
