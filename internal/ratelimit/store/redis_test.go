package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore spins up a miniredis instance backing a RedisStore.
func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_IncrementWithExpiry(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	v, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestRedisStore_ExpirySetOnFirstIncrementOnly(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	ttl := mr.TTL("test:k")
	require.Positive(t, ttl)

	// A later increment must not extend the window.
	mr.FastForward(30 * time.Second)
	_, err = s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.LessOrEqual(t, mr.TTL("test:k"), 30*time.Second)
}

func TestRedisStore_GetMissing(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStore_Get(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 7, time.Minute)
	require.NoError(t, err)

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestRedisStore_Delete(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStore_KeyExpires(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}
