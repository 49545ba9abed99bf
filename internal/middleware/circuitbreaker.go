package middleware

import (
	"io"
	"net/http"

	"github.com/arkadyev/reqguard/internal/circuitbreaker"
	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/util"
)

// CircuitBreakerMiddleware guards the downstream handler with the given
// breaker. A 5xx response or a panic escaping the handler counts as a
// failure; an open breaker answers 503 without invoking the handler.
func CircuitBreakerMiddleware(cb *circuitbreaker.Breaker, logger observability.Logger) func(http.Handler) http.Handler {
	m := circuitbreaker.GetBreakerMetrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := util.NewStatusCapturingResponseWriter(w)

			// Execute keeps the state check and the call atomic.
			_, err := cb.Execute(func() (interface{}, error) {
				next.ServeHTTP(rw, r)
				if rw.StatusCode >= http.StatusInternalServerError {
					return nil, util.NewServerError(rw.StatusCode)
				}
				return nil, nil
			})
			if err == nil {
				m.Requests.WithLabelValues(cb.Name(), "success").Inc()
				return
			}

			if circuitbreaker.IsOpenErr(err) {
				m.Requests.WithLabelValues(cb.Name(), "rejected").Inc()

				logger.Warn("circuit breaker rejected request",
					observability.String("name", cb.Name()),
					observability.String("path", r.URL.Path),
					observability.String("state", cb.State().String()),
				)

				if !rw.HeaderWritten {
					w.Header().Set(HeaderContentType, ContentTypeJSON)
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = io.WriteString(w, ErrServiceUnavailable)
				}
				return
			}

			// Server errors already wrote their response downstream.
			m.Requests.WithLabelValues(cb.Name(), "failure").Inc()
		})
	}
}

// CircuitBreakerFromConfig creates circuit breaker middleware for the
// gateway's downstream target. Disabled config passes requests through.
func CircuitBreakerFromConfig(
	cfg *config.CircuitBreakerConfig,
	registry *circuitbreaker.Registry,
	logger observability.Logger,
) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return CircuitBreakerMiddleware(registry.Get("downstream"), logger)
}
