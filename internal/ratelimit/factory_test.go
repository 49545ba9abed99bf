package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyev/reqguard/internal/config"
)

func TestFactory_WindowLimiter(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(config.StoreConfig{Type: config.StoreMemory}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	l, err := f.Limiter(config.AlgorithmWindow, 2, time.Second)
	require.NoError(t, err)
	require.IsType(t, &WindowLimiter{}, l)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestFactory_DefaultAlgorithmIsWindow(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(config.StoreConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	l, err := f.Limiter("", 1, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &WindowLimiter{}, l)
}

func TestFactory_TokenBucketLimiter(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(config.StoreConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	l, err := f.Limiter(config.AlgorithmTokenBucket, 5, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &TokenBucketLimiter{}, l)
}

func TestFactory_UnknownAlgorithm(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(config.StoreConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	_, err = f.Limiter("leaky_bucket", 5, time.Second)
	assert.Error(t, err)
}
