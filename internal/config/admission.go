package config

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"
)

// Key extractor kinds.
const (
	// KeyByIP keys rate limits by resolved client IP.
	KeyByIP = "ip"

	// KeyByUser keys rate limits by the upstream-authenticated user identity,
	// falling back to client IP for anonymous requests.
	KeyByUser = "user"

	// KeyByAPIKey keys rate limits by API credential (Authorization bearer
	// token or X-API-Key header), falling back to client IP.
	KeyByAPIKey = "apikey"
)

// Rate limiting algorithms.
const (
	// AlgorithmWindow is fixed-window counting with lazy expiry.
	AlgorithmWindow = "window"

	// AlgorithmTokenBucket is token-bucket smoothing via golang.org/x/time.
	AlgorithmTokenBucket = "token_bucket"
)

// Limiter store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// AdmissionConfig configures rate-limit rules and the bypass list.
type AdmissionConfig struct {
	// Default is the process-wide fallback limit applied when no other
	// rule matches a request, so no path is ever unmetered.
	Default LimitConfig `yaml:"default" json:"default"`

	// Global, when enabled, applies to every non-bypassed request in
	// addition to any path, pattern, or predicate rules.
	Global *RuleConfig `yaml:"global,omitempty" json:"global,omitempty"`

	// Paths are exact-path rules.
	Paths []RuleConfig `yaml:"paths,omitempty" json:"paths,omitempty"`

	// Patterns are regular-expression rules, evaluated in order; every
	// matching pattern's limiter is checked.
	Patterns []RuleConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`

	// Bypass exempts trusted clients from all rate limiting.
	Bypass BypassConfig `yaml:"bypass,omitempty" json:"bypass,omitempty"`

	// Store selects the counter backend.
	Store StoreConfig `yaml:"store,omitempty" json:"store,omitempty"`

	// LogAllowed logs every successful admission check at debug level.
	LogAllowed bool `yaml:"logAllowed,omitempty" json:"logAllowed,omitempty"`
}

// LimitConfig is a window limit.
type LimitConfig struct {
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int `yaml:"maxRequests" json:"maxRequests"`

	// Window is the counting interval.
	Window Duration `yaml:"window" json:"window"`
}

// RuleConfig configures a single admission rule.
type RuleConfig struct {
	// Name identifies the rule in logs and rejection metadata.
	Name string `yaml:"name" json:"name"`

	// Enabled toggles the rule. Defaults to true when omitted for path and
	// pattern rules; the global rule must opt in explicitly.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Path is the literal request path (exact-path rules only).
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Pattern is the path regular expression (pattern rules only).
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Methods restricts the rule to the listed HTTP methods.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// MaxRequests and Window define the rule's limit.
	MaxRequests int      `yaml:"maxRequests" json:"maxRequests"`
	Window      Duration `yaml:"window" json:"window"`

	// KeyBy selects the key extractor: ip, user, or apikey. Default ip.
	KeyBy string `yaml:"keyBy,omitempty" json:"keyBy,omitempty"`

	// Algorithm selects window or token_bucket. Default window.
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
}

// IsEnabled reports whether the rule is active.
func (r *RuleConfig) IsEnabled() bool {
	if r == nil {
		return false
	}
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// BypassConfig exempts trusted clients from rate limiting entirely.
type BypassConfig struct {
	// IPs is a list of client IPs that skip all rate limiting.
	IPs []string `yaml:"ips,omitempty" json:"ips,omitempty"`

	// Paths is a list of request paths that skip all rate limiting.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`

	// UserAgents is a list of regular expressions matched against the
	// User-Agent header.
	UserAgents []string `yaml:"userAgents,omitempty" json:"userAgents,omitempty"`
}

// StoreConfig selects the rate-limit counter backend.
type StoreConfig struct {
	// Type is memory (default) or redis.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Redis configures the redis backend.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig configures the redis counter store.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// DefaultAdmissionConfig returns an admission configuration with a
// conservative process-wide fallback limit.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		Default: LimitConfig{
			MaxRequests: 100,
			Window:      Duration(time.Minute),
		},
	}
}

// Validate validates the admission configuration. Pattern compilation
// failures and unknown enum values are reported here so they abort startup.
func (c *AdmissionConfig) Validate() error {
	if err := c.Default.validate("default"); err != nil {
		return err
	}

	if c.Global != nil && c.Global.IsEnabled() {
		if err := c.Global.validate("global", false, false); err != nil {
			return err
		}
	}

	for i := range c.Paths {
		if err := c.Paths[i].validate(fmt.Sprintf("paths[%d]", i), true, false); err != nil {
			return err
		}
	}

	for i := range c.Patterns {
		if err := c.Patterns[i].validate(fmt.Sprintf("patterns[%d]", i), false, true); err != nil {
			return err
		}
	}

	for i, ip := range c.Bypass.IPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("bypass.ips[%d]: invalid IP %q", i, ip)
		}
	}
	for i, expr := range c.Bypass.UserAgents {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("bypass.userAgents[%d]: %w", i, err)
		}
	}

	switch c.Store.Type {
	case "", StoreMemory:
	case StoreRedis:
		if c.Store.Redis == nil || c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required for the redis store")
		}
	default:
		return fmt.Errorf("store.type: unknown store %q", c.Store.Type)
	}

	return nil
}

func (l *LimitConfig) validate(field string) error {
	if l.MaxRequests <= 0 {
		return fmt.Errorf("%s.maxRequests must be positive", field)
	}
	if l.Window.Duration() <= 0 {
		return fmt.Errorf("%s.window must be positive", field)
	}
	return nil
}

func (r *RuleConfig) validate(field string, needPath, needPattern bool) error {
	if !r.IsEnabled() {
		return nil
	}
	if needPath && r.Path == "" {
		return fmt.Errorf("%s.path is required", field)
	}
	if needPattern {
		if r.Pattern == "" {
			return fmt.Errorf("%s.pattern is required", field)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("%s.pattern: %w", field, err)
		}
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("%s.maxRequests must be positive", field)
	}
	if r.Window.Duration() <= 0 {
		return fmt.Errorf("%s.window must be positive", field)
	}
	switch r.KeyBy {
	case "", KeyByIP, KeyByUser, KeyByAPIKey:
	default:
		return fmt.Errorf("%s.keyBy: unknown extractor %q", field, r.KeyBy)
	}
	switch r.Algorithm {
	case "", AlgorithmWindow, AlgorithmTokenBucket:
	default:
		return fmt.Errorf("%s.algorithm: unknown algorithm %q", field, r.Algorithm)
	}
	for _, m := range r.Methods {
		if http.MethodGet != m && http.MethodPost != m && http.MethodPut != m &&
			http.MethodPatch != m && http.MethodDelete != m && http.MethodHead != m &&
			http.MethodOptions != m {
			return fmt.Errorf("%s.methods: unknown method %q", field, m)
		}
	}
	return nil
}
