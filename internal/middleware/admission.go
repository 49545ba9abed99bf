package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/arkadyev/reqguard/internal/dispatch"
	"github.com/arkadyev/reqguard/internal/ratelimit"
)

// RejectionHandler writes the response for a refused request. It may
// assume the rate-limit headers are already set.
type RejectionHandler func(w http.ResponseWriter, r *http.Request, rej *dispatch.Rejection)

// defaultRejectionHandler writes the standard 429 JSON body.
func defaultRejectionHandler(w http.ResponseWriter, _ *http.Request, _ *dispatch.Rejection) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = io.WriteString(w, ErrRateLimitExceeded)
}

// AdmissionOption configures the admission middleware.
type AdmissionOption func(*admission)

// WithRejectionHandler overrides the rejection response body.
func WithRejectionHandler(h RejectionHandler) AdmissionOption {
	return func(a *admission) {
		a.onReject = h
	}
}

type admission struct {
	dispatcher *dispatch.Dispatcher
	onReject   RejectionHandler
}

// Admission returns a middleware that checks every request against the
// dispatcher and rejects exhausted clients with 429 plus the standard
// rate-limit headers.
func Admission(dispatcher *dispatch.Dispatcher, opts ...AdmissionOption) func(http.Handler) http.Handler {
	a := &admission{
		dispatcher: dispatcher,
		onReject:   defaultRejectionHandler,
	}
	for _, opt := range opts {
		opt(a)
	}
	mm := GetMiddlewareMetrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rej := a.dispatcher.Check(r)
			if rej == nil {
				mm.admissionAllowed.Inc()
				next.ServeHTTP(w, r)
				return
			}

			mm.admissionRejected.WithLabelValues(rej.Rule).Inc()
			setRateLimitHeaders(w, rej.Result)
			a.onReject(w, r, rej)
		})
	}
}

// setRateLimitHeaders writes the limit headers from the failed check.
// Retry-After and X-RateLimit-Reset are rounded up so clients never
// retry early.
func setRateLimitHeaders(w http.ResponseWriter, res *ratelimit.Result) {
	if res == nil {
		return
	}
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(res.ResetAfter)))
	h.Set(HeaderRetryAfter, strconv.Itoa(ceilSeconds(res.RetryAfter)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
