package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyev/reqguard/internal/util"
)

var errDownstream = errors.New("downstream failed")

func fail(b *Breaker) error {
	_, err := b.Execute(func() (interface{}, error) {
		return nil, errDownstream
	})
	return err
}

func succeed(b *Breaker) error {
	_, err := b.Execute(func() (interface{}, error) {
		return "ok", nil
	})
	return err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := New("target", 3, time.Minute)
	require.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, fail(b), errDownstream)
	}
	assert.Equal(t, StateOpen, b.State())

	// Open circuit rejects without invoking the function.
	invoked := false
	_, err := b.Execute(func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	assert.True(t, IsOpenErr(err))
	assert.ErrorIs(t, err, util.ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	t.Parallel()

	b := New("target", 3, time.Minute)

	require.NoError(t, succeed(b))
	require.Error(t, fail(b))
	require.Error(t, fail(b))
	require.NoError(t, succeed(b))
	require.Error(t, fail(b))
	require.Error(t, fail(b))

	// Failures were never consecutive three times, so the breaker holds.
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialCloses(t *testing.T) {
	t.Parallel()

	b := New("target", 2, 30*time.Millisecond)

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// A single successful trial closes the breaker.
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	t.Parallel()

	b := New("target", 2, 30*time.Millisecond)

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	// The trial fails: back to open with a fresh recovery timeout.
	require.ErrorIs(t, fail(b), errDownstream)
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_StateCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	type transition struct{ from, to State }
	var transitions []transition

	b := New("target", 1, 20*time.Millisecond, WithStateCallback(func(_ string, from, to State) {
		mu.Lock()
		transitions = append(transitions, transition{from, to})
		mu.Unlock()
	}))

	require.Error(t, fail(b))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, succeed(b))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 3)
	assert.Equal(t, transition{StateClosed, StateOpen}, transitions[0])
	assert.Equal(t, transition{StateOpen, StateHalfOpen}, transitions[1])
	assert.Equal(t, transition{StateHalfOpen, StateClosed}, transitions[2])
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
