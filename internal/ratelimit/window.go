package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arkadyev/reqguard/internal/ratelimit/store"
)

// WindowLimiter implements fixed-window counting with lazy expiry. The
// window starts at the first request for a key and rolls over on the next
// access after it elapses; no timer is involved in correctness. Rejected
// requests still increment the counter, so a key hammering past its limit
// stays blocked until its window expires.
type WindowLimiter struct {
	windows *store.WindowStore
	limit   int
	window  time.Duration
	logger  *zap.Logger

	total atomic.Int64
}

// WindowLimiterOption is a functional option for the window limiter.
type WindowLimiterOption func(*WindowLimiter)

// WithWindowLogger sets the logger.
func WithWindowLogger(logger *zap.Logger) WindowLimiterOption {
	return func(l *WindowLimiter) {
		l.logger = logger
	}
}

// NewWindowLimiter creates a window limiter over an injected window store.
// The store's lifecycle (sweeping, Close) belongs to the caller, which keeps
// limiter instances cheap and lets tests share or isolate state explicitly.
func NewWindowLimiter(windows *store.WindowStore, limit int, window time.Duration, opts ...WindowLimiterOption) *WindowLimiter {
	l := &WindowLimiter{
		windows: windows,
		limit:   limit,
		window:  window,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowWith(ctx, key, nil)
}

// AllowWith implements Limiter. The fetch-reset-increment-compare sequence
// runs under the per-key lock; see the WindowStore contract.
func (l *WindowLimiter) AllowWith(ctx context.Context, key string, o *Override) (*Result, error) {
	limit, window := l.effective(o)
	now := time.Now()

	w := l.windows.GetOrCreate(key)
	w.Mu.Lock()
	defer w.Mu.Unlock()

	if w.Start.IsZero() || now.Sub(w.Start) >= window {
		w.Count = 0
		w.Start = now
	}
	w.Count++
	w.LastAccess = now
	w.Limit = limit
	w.Span = window

	l.total.Add(1)

	resetAfter := window - now.Sub(w.Start)
	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:    w.Count <= limit,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !result.Allowed {
		result.RetryAfter = resetAfter
	}
	return result, nil
}

// Reset implements Limiter. It force-clears the key regardless of elapsed
// time.
func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	l.windows.Delete(key)
	return nil
}

// Status returns a snapshot of key's window without mutating it. It reports
// the state as of the last access; an elapsed window shows as unblocked
// with a zero ResetAfter.
func (l *WindowLimiter) Status(key string) (*KeyStatus, bool) {
	w, ok := l.windows.Get(key)
	if !ok {
		return nil, false
	}

	now := time.Now()

	w.Mu.Lock()
	defer w.Mu.Unlock()

	limit := w.Limit
	if limit == 0 {
		limit = l.limit
	}
	window := w.Span
	if window == 0 {
		window = l.window
	}

	expired := w.Start.IsZero() || now.Sub(w.Start) >= window
	st := &KeyStatus{
		Key:         key,
		Count:       w.Count,
		Limit:       limit,
		WindowStart: w.Start,
	}
	if expired {
		st.Count = 0
		st.Remaining = limit
		return st, true
	}

	st.Remaining = limit - w.Count
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	st.ResetAfter = window - now.Sub(w.Start)
	st.Blocked = w.Count > limit
	return st, true
}

// Statistics aggregates counters across all tracked keys.
func (l *WindowLimiter) Statistics() Stats {
	now := time.Now()

	stats := Stats{TotalRequests: l.total.Load()}
	l.windows.Range(func(_ string, w *store.Window) bool {
		stats.Keys++
		w.Mu.Lock()
		window := w.Span
		if window == 0 {
			window = l.window
		}
		limit := w.Limit
		if limit == 0 {
			limit = l.limit
		}
		if !w.Start.IsZero() && now.Sub(w.Start) < window && w.Count > limit {
			stats.BlockedKeys++
		}
		w.Mu.Unlock()
		return true
	})
	if stats.Keys > 0 {
		stats.AvgRequestsPerKey = float64(stats.TotalRequests) / float64(stats.Keys)
	}
	return stats
}

func (l *WindowLimiter) effective(o *Override) (int, time.Duration) {
	limit, window := l.limit, l.window
	if o != nil {
		if o.MaxRequests > 0 {
			limit = o.MaxRequests
		}
		if o.Window > 0 {
			window = o.Window
		}
	}
	return limit, window
}
