// Package ratelimit provides per-key request admission limiting. The
// primary implementation is fixed-window counting with lazy expiry; a
// token-bucket variant and a redis-backed window variant implement the same
// interface for smoothed and multi-instance limiting.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the interface admission rules check requests against.
type Limiter interface {
	// Allow checks whether a single request for key is admitted.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowWith is Allow with a per-call override of the configured limit,
	// used by path-specific rules sharing one limiter.
	AllowWith(ctx context.Context, key string, o *Override) (*Result, error)

	// Reset clears the state for key, immediately un-blocking it.
	Reset(ctx context.Context, key string) error
}

// Override adjusts the limit for a single Allow call.
type Override struct {
	// MaxRequests overrides the admitted request count per window.
	MaxRequests int

	// Window overrides the counting interval.
	Window time.Duration
}

// Result is the outcome of one admission check. Rejection is an expected,
// user-visible outcome modeled as a value, never as an error.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAfter is the duration until the window rolls over.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying; zero when allowed.
	RetryAfter time.Duration
}

// Inspector is implemented by limiters that can report per-key state and
// aggregate statistics without mutating windows.
type Inspector interface {
	// Status returns a snapshot for key; ok is false when the key is untracked.
	Status(key string) (*KeyStatus, bool)

	// Statistics returns limiter-wide counters.
	Statistics() Stats
}

// KeyStatus is a non-mutating snapshot of one key's window state.
type KeyStatus struct {
	Key         string
	Count       int
	Limit       int
	Remaining   int
	WindowStart time.Time
	ResetAfter  time.Duration
	Blocked     bool
}

// Stats aggregates limiter-wide counters.
type Stats struct {
	// Keys is the number of currently tracked keys.
	Keys int

	// TotalRequests is the cumulative number of checks since start.
	TotalRequests int64

	// AvgRequestsPerKey is TotalRequests divided by Keys.
	AvgRequestsPerKey float64

	// BlockedKeys is the number of keys over their limit inside a live window.
	BlockedKeys int
}

// NoopLimiter admits every request. Used where a rule is disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that always allows.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// AllowWith implements Limiter.
func (l *NoopLimiter) AllowWith(ctx context.Context, key string, o *Override) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}
