package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreakers(cfg BreakerConfig) (*BreakerSet, *time.Time) {
	set := NewBreakerSet(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	set.setClock(func() time.Time { return now })
	return set, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	set, _ := newTestBreakers(BreakerConfig{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		require.NoError(t, set.Allow("gemini"))
		set.Record("gemini", false)
	}
	assert.Equal(t, CircuitClosed, set.State("gemini"), "two failures should not open the circuit")

	require.NoError(t, set.Allow("gemini"))
	set.Record("gemini", false)
	assert.Equal(t, CircuitOpen, set.State("gemini"))

	err := set.Allow("gemini")
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "gemini", open.Key)
	assert.Greater(t, open.RetryAfter, time.Duration(0))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	set, _ := newTestBreakers(BreakerConfig{FailureThreshold: 3})

	set.Record("gemini", false)
	set.Record("gemini", false)
	set.Record("gemini", true)
	set.Record("gemini", false)
	set.Record("gemini", false)

	assert.Equal(t, CircuitClosed, set.State("gemini"), "non-consecutive failures must not open the circuit")
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	set, now := newTestBreakers(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	set.Record("gemini", false)
	require.Equal(t, CircuitOpen, set.State("gemini"))

	// Still inside the cooldown window.
	assert.Error(t, set.Allow("gemini"))

	*now = now.Add(61 * time.Second)
	require.NoError(t, set.Allow("gemini"), "first call after cooldown is the half-open trial")
	assert.Equal(t, CircuitHalfOpen, set.State("gemini"))

	// A second caller while the trial is in flight fails fast.
	assert.Error(t, set.Allow("gemini"))

	set.Record("gemini", true)
	assert.Equal(t, CircuitClosed, set.State("gemini"))
	assert.NoError(t, set.Allow("gemini"))
}

func TestBreakerFailedTrialDoublesCooldown(t *testing.T) {
	set, now := newTestBreakers(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		MaxCooldown:      4 * time.Minute,
	})

	set.Record("gemini", false)

	// First trial fails: cooldown 1m -> 2m.
	*now = now.Add(61 * time.Second)
	require.NoError(t, set.Allow("gemini"))
	set.Record("gemini", false)
	require.Equal(t, CircuitOpen, set.State("gemini"))

	*now = now.Add(90 * time.Second)
	assert.Error(t, set.Allow("gemini"), "90s into a 2m cooldown should still fail fast")

	*now = now.Add(31 * time.Second)
	require.NoError(t, set.Allow("gemini"))

	// Second failed trial: 2m -> 4m. A third would be capped at MaxCooldown.
	set.Record("gemini", false)
	*now = now.Add(4*time.Minute + time.Second)
	require.NoError(t, set.Allow("gemini"))
	set.Record("gemini", false)
	*now = now.Add(4*time.Minute + time.Second)
	assert.NoError(t, set.Allow("gemini"), "cooldown must be capped at MaxCooldown")
}

func TestBreakerKeysAreIndependent(t *testing.T) {
	set, _ := newTestBreakers(BreakerConfig{FailureThreshold: 1})

	set.Record("gemini", false)
	assert.Equal(t, CircuitOpen, set.State("gemini"))
	assert.Equal(t, CircuitClosed, set.State("other"))
	assert.NoError(t, set.Allow("other"))
}

func TestCircuitOpenErrorMessage(t *testing.T) {
	err := &CircuitOpenError{Key: "gemini", RetryAfter: 30 * time.Second}
	assert.Contains(t, err.Error(), "gemini")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}
