package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBucketTTL is how long an idle per-key bucket is retained.
const DefaultBucketTTL = 10 * time.Minute

// bucketEntry holds a per-key token bucket and its last access time.
type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TokenBucketLimiter smooths admission using golang.org/x/time/rate, one
// bucket per key. The configured window limit maps to a refill rate of
// limit/window with a burst of limit.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketEntry
	limit   int
	window  time.Duration
	logger  *zap.Logger

	ttl     time.Duration
	stop    chan struct{}
	stopped bool
}

// TokenBucketOption is a functional option for the token bucket limiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithBucketLogger sets the logger.
func WithBucketLogger(logger *zap.Logger) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// WithBucketTTL sets the idle bucket TTL.
func WithBucketTTL(ttl time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.ttl = ttl
	}
}

// NewTokenBucketLimiter creates a token bucket limiter and starts its idle
// bucket cleanup. Call Close when done.
func NewTokenBucketLimiter(limit int, window time.Duration, opts ...TokenBucketOption) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		buckets: make(map[string]*bucketEntry),
		limit:   limit,
		window:  window,
		logger:  zap.NewNop(),
		ttl:     DefaultBucketTTL,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowWith(ctx, key, nil)
}

// AllowWith implements Limiter. An override re-parameterizes the key's
// bucket for this call.
func (l *TokenBucketLimiter) AllowWith(ctx context.Context, key string, o *Override) (*Result, error) {
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
	perSecond := rate.Limit(float64(limit) / window.Seconds())

	l.mu.Lock()
	entry, ok := l.buckets[key]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(perSecond, limit)}
		l.buckets[key] = entry
	}
	entry.lastAccess = now
	if entry.limiter.Limit() != perSecond || entry.limiter.Burst() != limit {
		entry.limiter.SetLimit(perSecond)
		entry.limiter.SetBurst(limit)
	}
	limiter := entry.limiter
	l.mu.Unlock()

	allowed := limiter.Allow()
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: window,
	}
	if !allowed {
		// Time until one token refills.
		result.RetryAfter = time.Duration(float64(time.Second) / float64(perSecond))
	}
	return result, nil
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

// Close stops the cleanup goroutine.
func (l *TokenBucketLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.stop)
	}
	return nil
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *TokenBucketLimiter) removeIdle() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.buckets {
		if now.Sub(entry.lastAccess) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("removed idle token buckets",
			zap.Int("removed", removed),
			zap.Int("remaining", len(l.buckets)),
		)
	}
}
