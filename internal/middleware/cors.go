package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/arkadyev/reqguard/internal/config"
)

// CORSConfig contains CORS negotiation settings.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a permissive default configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		MaxAge:       86400,
	}
}

// corsHeaders holds pre-computed CORS header values.
type corsHeaders struct {
	allowOrigins     map[string]bool
	wildcardPatterns []string
	allowAllOrigins  bool
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	maxAge           string
	allowCredentials bool
}

func newCORSHeaders(cfg CORSConfig) *corsHeaders {
	h := &corsHeaders{
		allowOrigins:     make(map[string]bool),
		allowMethods:     strings.Join(cfg.AllowMethods, ", "),
		allowHeaders:     strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders:    strings.Join(cfg.ExposeHeaders, ", "),
		maxAge:           strconv.Itoa(cfg.MaxAge),
		allowCredentials: cfg.AllowCredentials,
	}
	for _, origin := range cfg.AllowOrigins {
		switch {
		case origin == "*":
			h.allowAllOrigins = true
		case strings.HasPrefix(origin, "*."):
			h.wildcardPatterns = append(h.wildcardPatterns, origin)
		default:
			h.allowOrigins[origin] = true
		}
	}
	return h
}

// isOriginAllowed checks the exact allow-list, the wildcard origin, and
// the "*.domain" subdomain patterns.
func (h *corsHeaders) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if h.allowAllOrigins {
		return true
	}
	if h.allowOrigins[origin] {
		return true
	}
	for _, pattern := range h.wildcardPatterns {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// matchWildcardOrigin matches "*.example.com" against the origin host.
// The bare apex does not match; there must be a subdomain.
func matchWildcardOrigin(origin, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	suffix := pattern[1:] // ".example.com"

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// setOrigin writes the origin grant headers when the origin is allowed.
// The specific origin is always echoed rather than "*" so credentialed
// responses stay valid, with Vary: Origin for caches.
func (h *corsHeaders) setOrigin(w http.ResponseWriter, origin string) bool {
	if !h.isOriginAllowed(origin) {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add(HeaderVary, "Origin")
	if h.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	return true
}

// CORS returns a middleware that answers preflights and grants origins
// on actual responses.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	headers := newCORSHeaders(cfg)
	mm := GetMiddlewareMetrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get(HeaderOrigin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				mm.corsRequestsTotal.WithLabelValues("preflight").Inc()
				// Method/header/max-age metadata is static; only the
				// origin grant depends on the allow-list.
				w.Header().Set("Access-Control-Allow-Methods", headers.allowMethods)
				if headers.allowHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", headers.allowHeaders)
				}
				if headers.maxAge != "0" {
					w.Header().Set("Access-Control-Max-Age", headers.maxAge)
				}
				headers.setOrigin(w, origin)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if origin != "" {
				mm.corsRequestsTotal.WithLabelValues("actual").Inc()
				if headers.setOrigin(w, origin) && headers.exposeHeaders != "" {
					w.Header().Set("Access-Control-Expose-Headers", headers.exposeHeaders)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORSFromConfig creates CORS middleware from gateway config. A nil
// config disables negotiation entirely.
func CORSFromConfig(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	corsConfig := CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	def := DefaultCORSConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = def.AllowOrigins
	}
	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = def.AllowMethods
	}
	if len(corsConfig.AllowHeaders) == 0 {
		corsConfig.AllowHeaders = def.AllowHeaders
	}
	return CORS(corsConfig)
}
