package middleware

import (
	"net/http"

	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/security"
	"github.com/arkadyev/reqguard/internal/util"
)

// SecurityHeaders returns a middleware that injects the protective
// header set before the handler runs, so headers are present even when
// the handler writes early. The CSP nonce, when generated, is placed in
// the request context for handlers that render inline scripts.
func SecurityHeaders(composer *security.Composer, logger observability.Logger) func(http.Handler) http.Handler {
	mm := GetMiddlewareMetrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !composer.ShouldApply(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			nonce, err := composer.Apply(w, r)
			if err != nil {
				// Nonce generation failing means the entropy source is
				// broken; serve without CSP rather than fail the request.
				logger.Error("security header composition failed",
					observability.String("path", r.URL.Path),
					observability.Error(err),
				)
			}
			mm.securityHeadersApplied.Inc()

			if nonce != "" {
				r = r.WithContext(util.ContextWithNonce(r.Context(), nonce))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersFromConfig creates the middleware from gateway config.
// Disabled config passes requests through.
func SecurityHeadersFromConfig(cfg *config.SecurityConfig, logger observability.Logger) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return SecurityHeaders(security.NewComposer(cfg), logger)
}
