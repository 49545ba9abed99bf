package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyev/reqguard/internal/ratelimit/store"
)

func newTestRedisWindowLimiter(t *testing.T, limit int, window time.Duration) *RedisWindowLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreWithClient(client, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return NewRedisWindowLimiter(s, limit, window, nil)
}

func TestRedisWindowLimiter_AllowSequence(t *testing.T) {
	t.Parallel()

	l := newTestRedisWindowLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be admitted", i+1)
	}

	res, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
}

func TestRedisWindowLimiter_Reset(t *testing.T) {
	t.Parallel()

	l := newTestRedisWindowLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	res, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "client-a"))

	res, err = l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// failingStore simulates a backend outage.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, errors.New("backend down")
}

func (failingStore) IncrementWithExpiry(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("backend down")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("backend down")
}

func (failingStore) Close() error { return nil }

func TestRedisWindowLimiter_FailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	l := NewRedisWindowLimiter(failingStore{}, 1, time.Minute, nil)

	// A broken backend must never block traffic; the error is still
	// surfaced so the caller can log it.
	res, err := l.Allow(context.Background(), "client-a")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Allowed)
}
