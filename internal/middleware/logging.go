package middleware

import (
	"net/http"
	"time"

	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/ratelimit"
	"github.com/arkadyev/reqguard/internal/util"
)

// Logging returns a middleware that logs each request with its outcome
// and records the shared request metrics.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := util.ContextWithStartTime(r.Context(), start)
			r = r.WithContext(ctx)

			rw := util.NewStatusCapturingResponseWriter(w)

			m := observability.GetMetrics()
			m.RequestsInFlight.Inc()
			next.ServeHTTP(rw, r)
			m.RequestsInFlight.Dec()

			duration := time.Since(start)
			requestID := util.RequestIDFromContext(r.Context())

			logger.Info("http request",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rw.StatusCode),
				observability.Duration("duration", duration),
				observability.String("client_ip", ratelimit.GetClientIP(r)),
				observability.String("user_agent", r.UserAgent()),
				observability.String("request_id", requestID),
			)

			m.ObserveRequest(r.Method, rw.StatusCode, duration)
		})
	}
}
