package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/solverhq/rebalancer/pkg/logger"
)

func newTestBreaker(enabled bool, threshold int, window, resetTimeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(enabled, 1, threshold, window, resetTimeout, &logger.EmptyLogger{})
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	cb := newTestBreaker(true, 3, time.Minute, time.Minute)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
}

func TestBreakerDisabledNeverOpens(t *testing.T) {
	cb := newTestBreaker(false, 1, time.Minute, time.Minute)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}

func TestBreakerWindowResetsCount(t *testing.T) {
	cb := newTestBreaker(true, 2, 20*time.Millisecond, time.Minute)

	assert.False(t, cb.RecordFailure())
	time.Sleep(40 * time.Millisecond)

	// The earlier failure aged out, so this one starts a fresh count.
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := newTestBreaker(true, 1, time.Minute, 20*time.Millisecond)

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, cb.IsOpen())
}

func TestBreakerManualReset(t *testing.T) {
	cb := newTestBreaker(true, 1, time.Minute, time.Hour)

	assert.True(t, cb.RecordFailure())
	cb.Reset()
	assert.False(t, cb.IsOpen())

	count, _, _, threshold := cb.GetState()
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, threshold)
}
