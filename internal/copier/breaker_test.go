package copier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(3)

	tripped, failures := b.RecordFailure("g1", "f1")
	assert.False(t, tripped)
	assert.Equal(t, 1, failures)

	tripped, _ = b.RecordFailure("g1", "f1")
	assert.False(t, tripped)
	assert.False(t, b.IsOpen("g1", "f1"))

	tripped, failures = b.RecordFailure("g1", "f1")
	assert.True(t, tripped)
	assert.Equal(t, 3, failures)
	assert.True(t, b.IsOpen("g1", "f1"))
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := NewCircuitBreaker(3)

	b.RecordFailure("g1", "f1")
	b.RecordFailure("g1", "f1")
	b.RecordSuccess("g1", "f1")

	tripped, failures := b.RecordFailure("g1", "f1")
	assert.False(t, tripped)
	assert.Equal(t, 1, failures)
}

func TestBreakerNoAutoReset(t *testing.T) {
	b := NewCircuitBreaker(1)

	tripped, _ := b.RecordFailure("g1", "f1")
	assert.True(t, tripped)

	// Успех НЕ закрывает открытый предохранитель - только явный Reset
	b.RecordSuccess("g1", "f1")
	assert.True(t, b.IsOpen("g1", "f1"))

	// Повторные неудачи после срабатывания не дают второго trip-сигнала
	tripped, _ = b.RecordFailure("g1", "f1")
	assert.False(t, tripped)
}

func TestBreakerReset(t *testing.T) {
	b := NewCircuitBreaker(1)

	b.RecordFailure("g1", "f1")
	assert.True(t, b.IsOpen("g1", "f1"))

	b.Reset("g1", "f1")
	assert.False(t, b.IsOpen("g1", "f1"))

	st := b.State("g1", "f1")
	assert.Zero(t, st.ConsecutiveFailures)
	assert.False(t, st.Tripped)
	assert.True(t, st.TrippedAt.IsZero())
}

func TestBreakerIsolatedPerFollower(t *testing.T) {
	b := NewCircuitBreaker(1)

	b.RecordFailure("g1", "f1")
	assert.True(t, b.IsOpen("g1", "f1"))
	assert.False(t, b.IsOpen("g1", "f2"))
	assert.False(t, b.IsOpen("g2", "f1"))
}
