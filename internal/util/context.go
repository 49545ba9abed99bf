package util

import (
	"context"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyStartTime ctxKey = "start_time"
	ctxKeyNonce     ctxKey = "csp_nonce"
	ctxKeyUserID    ctxKey = "user_id"
)

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxKeyStartTime).(time.Time)
	return t, ok
}

// ContextWithNonce adds the per-response CSP nonce to the context so that
// downstream handlers can embed it in inline resources.
func ContextWithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, ctxKeyNonce, nonce)
}

// NonceFromContext extracts the CSP nonce from context.
func NonceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyNonce).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID records the authenticated user identity resolved by an
// upstream auth layer. The admission pipeline treats it as opaque.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext extracts the authenticated user identity from context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}
