// Package middleware provides the HTTP middleware chain: request-ID,
// access logging, recovery, protective headers, CORS negotiation, request
// admission, and circuit breaking.
package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderOrigin is the Origin header name.
	HeaderOrigin = "Origin"

	// HeaderVary is the Vary header name.
	HeaderVary = "Vary"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderRateLimitLimit reports the window limit to the client.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining reports the remaining window capacity.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset reports seconds until the window resets.
	HeaderRateLimitReset = "X-RateLimit-Reset"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Error response constants.
const (
	// ErrRateLimitExceeded is the error body for admission rejections.
	ErrRateLimitExceeded = `{"error":"rate limit exceeded"}`

	// ErrServiceUnavailable is the error body for open circuit rejections.
	ErrServiceUnavailable = `{"error":"service unavailable","message":"circuit breaker open"}`

	// ErrInternalServerError is the error body for recovered panics.
	ErrInternalServerError = `{"error":"internal server error"}`
)
