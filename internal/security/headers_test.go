package security

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyev/reqguard/internal/config"
)

func enabledConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		Enabled: true,
		Headers: &config.SecurityHeadersConfig{
			XFrameOptions:       "DENY",
			XContentTypeOptions: "nosniff",
			ReferrerPolicy:      "strict-origin-when-cross-origin",
		},
	}
}

func TestComposer_StaticHeaders(t *testing.T) {
	t.Parallel()

	c := NewComposer(enabledConfig())
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	_, err := c.Apply(w, r)
	require.NoError(t, err)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestComposer_DisabledConfigWritesNothing(t *testing.T) {
	t.Parallel()

	c := NewComposer(&config.SecurityConfig{Enabled: false})
	w := httptest.NewRecorder()

	_, err := c.Apply(w, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Empty(t, w.Header())
}

func TestComposer_HSTSOnlyOnSecureRequests(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.HSTS = &config.HSTSConfig{Enabled: true, MaxAge: 31536000, IncludeSubDomains: true, Preload: true}
	c := NewComposer(cfg)

	// Plain HTTP: no HSTS.
	w := httptest.NewRecorder()
	_, err := c.Apply(w, httptest.NewRequest("GET", "http://example.com/", nil))
	require.NoError(t, err)
	assert.Empty(t, w.Header().Get(HeaderHSTS))

	// TLS request carries the full directive string.
	w = httptest.NewRecorder()
	_, err = c.Apply(w, httptest.NewRequest("GET", "https://example.com/", nil))
	require.NoError(t, err)
	assert.Equal(t, "max-age=31536000; includeSubDomains; preload", w.Header().Get(HeaderHSTS))

	// Terminated TLS is detected via X-Forwarded-Proto.
	w = httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	_, err = c.Apply(w, r)
	require.NoError(t, err)
	assert.NotEmpty(t, w.Header().Get(HeaderHSTS))
}

func TestComposer_CSPWithoutNonce(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.CSP = &config.CSPConfig{
		Enabled: true,
		Directives: &config.CSPDirectives{
			DefaultSrc:              []string{"'self'"},
			ScriptSrc:               []string{"'self'", "https://cdn.example.com"},
			ObjectSrc:               []string{"'none'"},
			UpgradeInsecureRequests: true,
		},
	}
	c := NewComposer(cfg)

	w := httptest.NewRecorder()
	nonce, err := c.Apply(w, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Empty(t, nonce)

	csp := w.Header().Get(HeaderCSP)
	assert.Equal(t, "default-src 'self'; script-src 'self' https://cdn.example.com; object-src 'none'; upgrade-insecure-requests", csp)
}

func TestComposer_CSPNoncePerRequest(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.CSP = &config.CSPConfig{
		Enabled: true,
		Directives: &config.CSPDirectives{
			ScriptSrc: []string{"'self'"},
		},
		NonceDirectives: []string{"script-src"},
	}
	c := NewComposer(cfg)

	w1 := httptest.NewRecorder()
	nonce1, err := c.Apply(w1, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, nonce1)
	assert.Contains(t, w1.Header().Get(HeaderCSP), "script-src 'self' 'nonce-"+nonce1+"'")

	// Each response gets a fresh nonce.
	w2 := httptest.NewRecorder()
	nonce2, err := c.Apply(w2, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.NotEqual(t, nonce1, nonce2)
}

func TestComposer_CSPReportOnly(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.CSP = &config.CSPConfig{
		Enabled:    true,
		Directives: &config.CSPDirectives{DefaultSrc: []string{"'self'"}},
		ReportOnly: true,
	}
	c := NewComposer(cfg)

	w := httptest.NewRecorder()
	_, err := c.Apply(w, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Empty(t, w.Header().Get(HeaderCSP))
	assert.NotEmpty(t, w.Header().Get(HeaderCSPReportOnly))
}

func TestComposer_PermissionsPolicy(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.PermissionsPolicy = &config.PermissionsPolicyConfig{
		Features: map[string][]string{
			"camera":      {},
			"geolocation": {"self", "https://maps.example.com"},
			"microphone":  {},
		},
	}
	c := NewComposer(cfg)

	w := httptest.NewRecorder()
	_, err := c.Apply(w, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	// Features are sorted; empty allow-lists deny entirely.
	assert.Equal(t,
		"camera=(), geolocation=(self https://maps.example.com), microphone=()",
		w.Header().Get("Permissions-Policy"))
}

func TestComposer_ShouldApply(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.SkipPaths = []string{"/metrics", "/internal/"}
	cfg.SkipExtensions = []string{".css", ".JS"}
	c := NewComposer(cfg)

	tests := []struct {
		path string
		want bool
	}{
		{"/index.html", true},
		{"/metrics", false},
		{"/internal/debug", false},
		{"/static/app.css", false},
		{"/static/app.js", false},
		{"/api/items", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.ShouldApply(tt.path), "path %s", tt.path)
	}
}

func TestNewNonce(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n, err := NewNonce()
		require.NoError(t, err)
		require.NotEmpty(t, n)
		assert.False(t, seen[n], "nonce repeated")
		seen[n] = true
		assert.False(t, strings.ContainsAny(n, " ;'"), "nonce must be header-safe")
	}
}
