// Package security composes protective response headers: the static
// hardening set, HSTS, Content-Security-Policy with per-request nonces,
// and Permissions-Policy.
package security

import (
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/arkadyev/reqguard/internal/config"
)

// Header names written by the composer.
const (
	HeaderCSP           = "Content-Security-Policy"
	HeaderCSPReportOnly = "Content-Security-Policy-Report-Only"
	HeaderHSTS          = "Strict-Transport-Security"
)

// Composer builds the protective header set for each response. Static
// values are computed once at construction; only the CSP nonce varies
// per request.
type Composer struct {
	static       map[string]string
	hstsValue    string
	cspHeader    string
	cspPrefix    []cspPart
	nonceTargets map[string]bool
	skipPaths    []string
	skipExts     map[string]bool
}

// cspPart is one pre-rendered CSP directive.
type cspPart struct {
	directive string
	sources   string
	nonced    bool
}

// NewComposer precomputes header values from configuration.
func NewComposer(cfg *config.SecurityConfig) *Composer {
	c := &Composer{
		static:       make(map[string]string),
		nonceTargets: make(map[string]bool),
		skipExts:     make(map[string]bool),
	}
	if cfg == nil || !cfg.Enabled {
		return c
	}

	if h := cfg.Headers; h != nil {
		if h.XFrameOptions != "" {
			c.static["X-Frame-Options"] = h.XFrameOptions
		}
		if h.XContentTypeOptions != "" {
			c.static["X-Content-Type-Options"] = h.XContentTypeOptions
		}
		if h.ReferrerPolicy != "" {
			c.static["Referrer-Policy"] = h.ReferrerPolicy
		}
	}

	if hsts := cfg.HSTS; hsts != nil && hsts.Enabled {
		c.hstsValue = fmt.Sprintf("max-age=%d", hsts.MaxAge)
		if hsts.IncludeSubDomains {
			c.hstsValue += "; includeSubDomains"
		}
		if hsts.Preload {
			c.hstsValue += "; preload"
		}
	}

	if csp := cfg.CSP; csp != nil && csp.Enabled {
		c.cspHeader = HeaderCSP
		if csp.ReportOnly {
			c.cspHeader = HeaderCSPReportOnly
		}
		for _, d := range csp.NonceDirectives {
			c.nonceTargets[d] = true
		}
		c.cspPrefix = buildCSPParts(csp.Directives, c.nonceTargets)
	}

	if pp := cfg.PermissionsPolicy; pp != nil && len(pp.Features) > 0 {
		c.static["Permissions-Policy"] = buildPermissionsPolicy(pp.Features)
	}

	c.skipPaths = append(c.skipPaths, cfg.SkipPaths...)
	for _, ext := range cfg.SkipExtensions {
		c.skipExts[strings.ToLower(ext)] = true
	}
	return c
}

// ShouldApply reports whether headers are injected for the request path.
func (c *Composer) ShouldApply(reqPath string) bool {
	for _, prefix := range c.skipPaths {
		if strings.HasPrefix(reqPath, prefix) {
			return false
		}
	}
	if len(c.skipExts) > 0 {
		if ext := strings.ToLower(path.Ext(reqPath)); ext != "" && c.skipExts[ext] {
			return false
		}
	}
	return true
}

// Apply writes the protective headers for the request. When CSP nonce
// mode is active it returns the generated nonce so handlers can embed it;
// otherwise the returned nonce is empty.
func (c *Composer) Apply(w http.ResponseWriter, r *http.Request) (string, error) {
	h := w.Header()
	for name, value := range c.static {
		h.Set(name, value)
	}

	// HSTS is meaningful only on connections that are already secure.
	if c.hstsValue != "" && isSecureRequest(r) {
		h.Set(HeaderHSTS, c.hstsValue)
	}

	if c.cspHeader == "" {
		return "", nil
	}

	var nonce string
	if len(c.nonceTargets) > 0 {
		var err error
		nonce, err = NewNonce()
		if err != nil {
			return "", err
		}
	}
	h.Set(c.cspHeader, c.renderCSP(nonce))
	return nonce, nil
}

// renderCSP serializes the precomputed directives, appending the nonce
// source to nonce-target directives.
func (c *Composer) renderCSP(nonce string) string {
	parts := make([]string, 0, len(c.cspPrefix))
	for _, p := range c.cspPrefix {
		v := p.directive
		if p.sources != "" {
			v += " " + p.sources
		}
		if p.nonced && nonce != "" {
			v += " 'nonce-" + nonce + "'"
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "; ")
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// buildCSPParts renders directives in a fixed order for deterministic
// output.
func buildCSPParts(d *config.CSPDirectives, nonceTargets map[string]bool) []cspPart {
	if d == nil {
		d = &config.CSPDirectives{}
	}
	type entry struct {
		name    string
		sources []string
	}
	lists := []entry{
		{"default-src", d.DefaultSrc},
		{"script-src", d.ScriptSrc},
		{"style-src", d.StyleSrc},
		{"img-src", d.ImgSrc},
		{"font-src", d.FontSrc},
		{"connect-src", d.ConnectSrc},
		{"object-src", d.ObjectSrc},
		{"frame-ancestors", d.FrameAncestors},
		{"base-uri", d.BaseURI},
		{"form-action", d.FormAction},
	}

	var parts []cspPart
	for _, e := range lists {
		nonced := nonceTargets[e.name]
		if len(e.sources) == 0 && !nonced {
			continue
		}
		parts = append(parts, cspPart{
			directive: e.name,
			sources:   strings.Join(e.sources, " "),
			nonced:    nonced,
		})
	}
	if d.UpgradeInsecureRequests {
		parts = append(parts, cspPart{directive: "upgrade-insecure-requests"})
	}
	if d.BlockAllMixedContent {
		parts = append(parts, cspPart{directive: "block-all-mixed-content"})
	}
	return parts
}

// buildPermissionsPolicy renders the feature map sorted by feature name.
// An empty allow-list denies the feature entirely: feature=().
func buildPermissionsPolicy(features map[string][]string) string {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		allow := features[name]
		if len(allow) == 0 {
			parts = append(parts, name+"=()")
			continue
		}
		parts = append(parts, name+"=("+strings.Join(allow, " ")+")")
	}
	return strings.Join(parts, ", ")
}
