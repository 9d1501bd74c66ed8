package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, time.Second)
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.False(t, cb.Allow(), "breaker should open once the failure threshold is hit")
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 10*time.Second)
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	now = now.Add(11 * time.Second)
	assert.True(t, cb.Allow(), "breaker should probe again once resetTimeout elapses")
}

func TestCircuitBreaker_ClosesAfterHalfOpenSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, time.Second)
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordSuccess()
	cb.RecordSuccess()

	now = now.Add(time.Hour)
	for i := 0; i < 10; i++ {
		assert.True(t, cb.Allow())
	}
}

func TestCircuitBreaker_FailureInHalfOpenReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, time.Second)
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.False(t, cb.Allow(), "a failure while half-open must reopen the breaker")
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, time.Second)
	err := cb.Execute(func() error { return nil })
	assert.NoError(t, err)

	err = cb.Execute(func() error { return assertErr{} })
	assert.Error(t, err)

	err = cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen, "breaker should be open immediately after tripping")
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
