package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(openFor time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(func(o *CircuitBreakerOptions) {
		o.FailThreshold = 3
		o.Window = time.Minute
		o.OpenFor = openFor
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := testBreaker(time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow(), "still closed below threshold")
	assert.Equal(t, BreakerClosed, b.State())

	b.RecordFailure() // third failure hits the threshold
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsWindow(t *testing.T) {
	b := testBreaker(time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b := testBreaker(30 * time.Millisecond)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, BreakerOpen, b.State())
	require.False(t, b.Allow())

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, BreakerHalfOpen, b.State())

	assert.True(t, b.Allow(), "first caller gets the probe")
	assert.False(t, b.Allow(), "second caller is rejected while the probe is out")
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b := testBreaker(10 * time.Millisecond)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := testBreaker(20 * time.Millisecond)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}
