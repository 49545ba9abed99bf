package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkadyev/reqguard/internal/ratelimit/store"
)

// RedisWindowLimiter implements fixed-window counting over a shared counter
// store, for deployments where several instances must agree on one budget.
// Windows are aligned to the epoch so all instances count into the same
// bucket. Store failures fail open: the request is admitted and the error
// is surfaced for logging.
type RedisWindowLimiter struct {
	store  store.Store
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewRedisWindowLimiter creates a store-backed window limiter.
func NewRedisWindowLimiter(s store.Store, limit int, window time.Duration, logger *zap.Logger) *RedisWindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisWindowLimiter{
		store:  s,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow implements Limiter.
func (l *RedisWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowWith(ctx, key, nil)
}

// AllowWith implements Limiter.
func (l *RedisWindowLimiter) AllowWith(ctx context.Context, key string, o *Override) (*Result, error) {
	limit, window := l.limit, l.window
	if o != nil {
		if o.MaxRequests > 0 {
			limit = o.MaxRequests
		}
		if o.Window > 0 {
			window = o.Window
		}
	}

	now := time.Now()
	windowStart := now.Truncate(window)
	windowKey := fmt.Sprintf("%s:w:%d", key, windowStart.UnixNano())

	resetAfter := windowStart.Add(window).Sub(now)

	count, err := l.store.IncrementWithExpiry(ctx, windowKey, 1, window+time.Second)
	if err != nil {
		l.logger.Warn("counter store unavailable, admitting request",
			zap.String("key", key),
			zap.Error(err),
		)
		return &Result{
			Allowed:    true,
			Limit:      limit,
			Remaining:  limit,
			ResetAfter: resetAfter,
		}, err
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:    int(count) <= limit,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !result.Allowed {
		result.RetryAfter = resetAfter
	}
	return result, nil
}

// Reset implements Limiter. It clears the current window's counter.
func (l *RedisWindowLimiter) Reset(ctx context.Context, key string) error {
	windowStart := time.Now().Truncate(l.window)
	windowKey := fmt.Sprintf("%s:w:%d", key, windowStart.UnixNano())
	return l.store.Delete(ctx, windowKey)
}
