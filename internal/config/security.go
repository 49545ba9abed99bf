package config

import (
	"fmt"
)

// SecurityConfig configures protective response headers.
type SecurityConfig struct {
	// Enabled enables security header injection.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Headers configures the basic protective headers.
	Headers *SecurityHeadersConfig `yaml:"headers,omitempty" json:"headers,omitempty"`

	// HSTS configures HTTP Strict Transport Security.
	HSTS *HSTSConfig `yaml:"hsts,omitempty" json:"hsts,omitempty"`

	// CSP configures Content Security Policy.
	CSP *CSPConfig `yaml:"csp,omitempty" json:"csp,omitempty"`

	// PermissionsPolicy configures the Permissions-Policy header.
	PermissionsPolicy *PermissionsPolicyConfig `yaml:"permissionsPolicy,omitempty" json:"permissionsPolicy,omitempty"`

	// SkipPaths lists path prefixes excluded from header injection.
	SkipPaths []string `yaml:"skipPaths,omitempty" json:"skipPaths,omitempty"`

	// SkipExtensions lists static-asset file extensions excluded from
	// header injection (".css", ".js", ...).
	SkipExtensions []string `yaml:"skipExtensions,omitempty" json:"skipExtensions,omitempty"`
}

// SecurityHeadersConfig configures the basic protective headers.
type SecurityHeadersConfig struct {
	// XFrameOptions sets X-Frame-Options. Valid: DENY, SAMEORIGIN.
	XFrameOptions string `yaml:"xFrameOptions,omitempty" json:"xFrameOptions,omitempty"`

	// XContentTypeOptions sets X-Content-Type-Options. Valid: nosniff.
	XContentTypeOptions string `yaml:"xContentTypeOptions,omitempty" json:"xContentTypeOptions,omitempty"`

	// ReferrerPolicy sets the Referrer-Policy header.
	ReferrerPolicy string `yaml:"referrerPolicy,omitempty" json:"referrerPolicy,omitempty"`
}

// HSTSConfig configures HTTP Strict Transport Security.
type HSTSConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	MaxAge            int  `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
	IncludeSubDomains bool `yaml:"includeSubDomains,omitempty" json:"includeSubDomains,omitempty"`
	Preload           bool `yaml:"preload,omitempty" json:"preload,omitempty"`
}

// CSPConfig configures Content Security Policy.
type CSPConfig struct {
	// Enabled enables CSP.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Directives holds the individual policy directives.
	Directives *CSPDirectives `yaml:"directives,omitempty" json:"directives,omitempty"`

	// NonceDirectives lists the list-valued directives that receive the
	// per-request nonce ("script-src", "style-src", ...). Empty disables
	// nonce mode.
	NonceDirectives []string `yaml:"nonceDirectives,omitempty" json:"nonceDirectives,omitempty"`

	// ReportOnly emits Content-Security-Policy-Report-Only instead.
	ReportOnly bool `yaml:"reportOnly,omitempty" json:"reportOnly,omitempty"`
}

// CSPDirectives contains individual CSP directives. List-valued directives
// are joined with spaces; boolean directives are emitted bare when true.
type CSPDirectives struct {
	DefaultSrc              []string `yaml:"defaultSrc,omitempty" json:"defaultSrc,omitempty"`
	ScriptSrc               []string `yaml:"scriptSrc,omitempty" json:"scriptSrc,omitempty"`
	StyleSrc                []string `yaml:"styleSrc,omitempty" json:"styleSrc,omitempty"`
	ImgSrc                  []string `yaml:"imgSrc,omitempty" json:"imgSrc,omitempty"`
	FontSrc                 []string `yaml:"fontSrc,omitempty" json:"fontSrc,omitempty"`
	ConnectSrc              []string `yaml:"connectSrc,omitempty" json:"connectSrc,omitempty"`
	ObjectSrc               []string `yaml:"objectSrc,omitempty" json:"objectSrc,omitempty"`
	FrameAncestors          []string `yaml:"frameAncestors,omitempty" json:"frameAncestors,omitempty"`
	BaseURI                 []string `yaml:"baseUri,omitempty" json:"baseUri,omitempty"`
	FormAction              []string `yaml:"formAction,omitempty" json:"formAction,omitempty"`
	UpgradeInsecureRequests bool     `yaml:"upgradeInsecureRequests,omitempty" json:"upgradeInsecureRequests,omitempty"`
	BlockAllMixedContent    bool     `yaml:"blockAllMixedContent,omitempty" json:"blockAllMixedContent,omitempty"`
}

// PermissionsPolicyConfig configures the Permissions-Policy header from a
// feature to allow-list map. An empty allow-list emits feature=().
type PermissionsPolicyConfig struct {
	Features map[string][]string `yaml:"features,omitempty" json:"features,omitempty"`
}

// nonceableDirectives are the list directives that may carry a nonce.
var nonceableDirectives = map[string]bool{
	"default-src": true,
	"script-src":  true,
	"style-src":   true,
}

// Validate validates the security configuration.
func (c *SecurityConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if h := c.Headers; h != nil {
		switch h.XFrameOptions {
		case "", "DENY", "SAMEORIGIN":
		default:
			return fmt.Errorf("headers.xFrameOptions: invalid value %q", h.XFrameOptions)
		}
		if h.XContentTypeOptions != "" && h.XContentTypeOptions != "nosniff" {
			return fmt.Errorf("headers.xContentTypeOptions: invalid value %q", h.XContentTypeOptions)
		}
	}
	if c.HSTS != nil && c.HSTS.Enabled && c.HSTS.MaxAge <= 0 {
		return fmt.Errorf("hsts.maxAge must be positive")
	}
	if c.CSP != nil && c.CSP.Enabled {
		for i, d := range c.CSP.NonceDirectives {
			if !nonceableDirectives[d] {
				return fmt.Errorf("csp.nonceDirectives[%d]: directive %q cannot carry a nonce", i, d)
			}
		}
	}
	return nil
}
