package ratelimit

import (
	"net/http"
	"strings"

	"github.com/arkadyev/reqguard/internal/util"
)

// KeyFunc extracts a rate-limit key from an HTTP request. Keys are opaque;
// uniqueness is the only invariant callers may rely on.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys by resolved client IP.
func IPKeyFunc(r *http.Request) string {
	return GetClientIP(r)
}

// UserKeyFunc keys by the upstream-authenticated user identity stored in the
// request context, falling back to client IP for anonymous requests.
func UserKeyFunc(r *http.Request) string {
	if user := util.UserIDFromContext(r.Context()); user != "" {
		return "user:" + user
	}
	return GetClientIP(r)
}

// APIKeyFunc keys by API credential: the Authorization bearer token when
// present, then the X-API-Key header, then client IP.
func APIKeyFunc(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
			return "cred:" + token
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "cred:" + key
	}
	return GetClientIP(r)
}

// PrefixKeyFunc namespaces a base key under a rule name so rules sharing a
// limiter never collide on window state.
func PrefixKeyFunc(prefix string, base KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		return prefix + ":" + base(r)
	}
}

// GetClientIP resolves the client IP from forwarding headers, falling back
// to the connection's remote address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")
	return ip
}
