package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/security"
	"github.com/arkadyev/reqguard/internal/util"
)

func securityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		Enabled: true,
		Headers: &config.SecurityHeadersConfig{
			XFrameOptions:       "DENY",
			XContentTypeOptions: "nosniff",
		},
		CSP: &config.CSPConfig{
			Enabled:         true,
			Directives:      &config.CSPDirectives{ScriptSrc: []string{"'self'"}},
			NonceDirectives: []string{"script-src"},
		},
		SkipPaths: []string{"/metrics"},
	}
}

func TestSecurityHeaders_InjectsBeforeHandler(t *testing.T) {
	t.Parallel()

	composer := security.NewComposer(securityConfig())
	var nonceInCtx string
	handler := SecurityHeaders(composer, observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonceInCtx = util.NonceFromContext(r.Context())
			// Writing immediately must not race the header injection.
			w.WriteHeader(http.StatusOK)
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/page", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	csp := w.Header().Get(security.HeaderCSP)
	require.NotEmpty(t, csp)
	require.NotEmpty(t, nonceInCtx)
	assert.Contains(t, csp, "'nonce-"+nonceInCtx+"'")
}

func TestSecurityHeaders_FreshNoncePerRequest(t *testing.T) {
	t.Parallel()

	composer := security.NewComposer(securityConfig())
	handler := SecurityHeaders(composer, observability.NopLogger())(okHandler())

	get := func() string {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/page", nil))
		return w.Header().Get(security.HeaderCSP)
	}
	assert.NotEqual(t, get(), get())
}

func TestSecurityHeaders_SkippedPath(t *testing.T) {
	t.Parallel()

	composer := security.NewComposer(securityConfig())
	handler := SecurityHeaders(composer, observability.NopLogger())(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get(security.HeaderCSP))
}

func TestSecurityHeadersFromConfig_DisabledPassesThrough(t *testing.T) {
	t.Parallel()

	handler := SecurityHeadersFromConfig(nil, observability.NopLogger())(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/page", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Frame-Options"))
}
