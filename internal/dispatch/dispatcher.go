package dispatch

import (
	"fmt"
	"net/http"

	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/ratelimit"
)

// Rejection describes why a request was refused admission.
type Rejection struct {
	// Rule is the name of the rule that rejected the request.
	Rule string

	// Key is the namespaced rate-limit key that exhausted its window.
	Key string

	// Result carries the limiter counters for response headers.
	Result *ratelimit.Result
}

// Dispatcher evaluates admission rules against each request in a fixed
// precedence: bypass, then the global rule, then exact-path rules, then
// pattern rules, then predicate rules. When no rule matched the request,
// the default rule applies. All matching rules are charged; the first
// one that rejects is reported.
type Dispatcher struct {
	bypass     *Bypass
	global     *Rule
	paths      []*Rule
	patterns   []*Rule
	predicates []*Rule
	fallback   *Rule
	logger     observability.Logger
	logAllowed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithLogAllowed enables debug logging of admitted requests.
func WithLogAllowed(enabled bool) Option {
	return func(d *Dispatcher) {
		d.logAllowed = enabled
	}
}

// WithBypass sets the bypass set.
func WithBypass(b *Bypass) Option {
	return func(d *Dispatcher) {
		d.bypass = b
	}
}

// WithGlobalRule sets the rule applied to every non-bypassed request.
func WithGlobalRule(r *Rule) Option {
	return func(d *Dispatcher) {
		d.global = r
	}
}

// NewDispatcher creates a dispatcher with the given default rule. The
// default rule is consulted only when no configured rule matched.
func NewDispatcher(fallback *Rule, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fallback: fallback,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.bypass == nil {
		d.bypass = &Bypass{}
	}
	return d
}

// AddRule registers a non-global rule. Registration order is preserved
// within each kind.
func (d *Dispatcher) AddRule(r *Rule) error {
	switch r.Kind {
	case KindExactPath:
		d.paths = append(d.paths, r)
	case KindPattern:
		d.patterns = append(d.patterns, r)
	case KindPredicate:
		d.predicates = append(d.predicates, r)
	case KindGlobal:
		return fmt.Errorf("rule %s: global rule must be set via WithGlobalRule", r.Name)
	default:
		return fmt.Errorf("rule %s: unknown kind %d", r.Name, r.Kind)
	}
	return nil
}

// Bypass exposes the bypass set so callers can install a predicate.
func (d *Dispatcher) Bypass() *Bypass {
	return d.bypass
}

// Rules returns every registered rule including the global and default
// rules, for inspection by the admin API.
func (d *Dispatcher) Rules() []*Rule {
	var rules []*Rule
	if d.global != nil {
		rules = append(rules, d.global)
	}
	rules = append(rules, d.paths...)
	rules = append(rules, d.patterns...)
	rules = append(rules, d.predicates...)
	if d.fallback != nil {
		rules = append(rules, d.fallback)
	}
	return rules
}

// Check evaluates the request against all applicable rules and returns a
// Rejection when a window is exhausted, or nil when the request is
// admitted. A limiter backend failure never rejects the request.
func (d *Dispatcher) Check(r *http.Request) *Rejection {
	clientIP := ratelimit.GetClientIP(r)
	if d.bypass.Matches(r, clientIP) {
		return nil
	}

	matched := false

	// The global rule counts as a match: with a global cap configured the
	// fallback never applies.
	if d.global != nil {
		matched = true
		if rej := d.check(r, d.global); rej != nil {
			return rej
		}
	}

	// Exact-path rules: the first matching rule owns the path.
	for _, rule := range d.paths {
		if !rule.matches(r) {
			continue
		}
		matched = true
		if rej := d.check(r, rule); rej != nil {
			return rej
		}
		break
	}

	// Every matching pattern and predicate rule is charged.
	for _, rule := range d.patterns {
		if !rule.matches(r) {
			continue
		}
		matched = true
		if rej := d.check(r, rule); rej != nil {
			return rej
		}
	}
	for _, rule := range d.predicates {
		if !rule.matches(r) {
			continue
		}
		matched = true
		if rej := d.check(r, rule); rej != nil {
			return rej
		}
	}

	if !matched && d.fallback != nil {
		if rej := d.check(r, d.fallback); rej != nil {
			return rej
		}
	}
	return nil
}

func (d *Dispatcher) check(r *http.Request, rule *Rule) *Rejection {
	key := rule.key(r)
	res, err := rule.Limiter.AllowWith(r.Context(), key, rule.Override)
	if err != nil {
		// Backend failures fail open: the request proceeds.
		d.logger.Warn("rate limit check failed, admitting request",
			observability.String("rule", rule.Name),
			observability.String("key", key),
			observability.Error(err),
		)
		return nil
	}
	if res != nil && !res.Allowed {
		d.logger.Info("request rejected",
			observability.String("rule", rule.Name),
			observability.String("key", key),
			observability.Int("limit", res.Limit),
			observability.Duration("retry_after", res.RetryAfter),
		)
		return &Rejection{Rule: rule.Name, Key: key, Result: res}
	}
	if d.logAllowed {
		d.logger.Debug("request admitted",
			observability.String("rule", rule.Name),
			observability.String("key", key),
			observability.Int("remaining", res.Remaining),
		)
	}
	return nil
}

// FromConfig builds a dispatcher from the admission section, creating
// limiters through the factory. Invalid rules abort startup.
func FromConfig(cfg config.AdmissionConfig, factory *ratelimit.Factory, logger observability.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	bypass, err := NewBypass(cfg.Bypass)
	if err != nil {
		return nil, err
	}

	fallback, err := buildRule(factory, config.RuleConfig{
		Name:        "default",
		MaxRequests: cfg.Default.MaxRequests,
		Window:      cfg.Default.Window,
	}, KindGlobal)
	if err != nil {
		return nil, fmt.Errorf("default rule: %w", err)
	}

	opts := []Option{WithLogger(logger), WithBypass(bypass), WithLogAllowed(cfg.LogAllowed)}
	if cfg.Global != nil && cfg.Global.IsEnabled() {
		global, err := buildRule(factory, *cfg.Global, KindGlobal)
		if err != nil {
			return nil, fmt.Errorf("global rule: %w", err)
		}
		opts = append(opts, WithGlobalRule(global))
	}

	d := NewDispatcher(fallback, opts...)

	for _, rc := range cfg.Paths {
		if !rc.IsEnabled() {
			continue
		}
		rule, err := buildRule(factory, rc, KindExactPath)
		if err != nil {
			return nil, err
		}
		if err := d.AddRule(rule); err != nil {
			return nil, err
		}
	}
	for _, rc := range cfg.Patterns {
		if !rc.IsEnabled() {
			continue
		}
		rule, err := buildRule(factory, rc, KindPattern)
		if err != nil {
			return nil, err
		}
		if err := d.AddRule(rule); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func buildRule(factory *ratelimit.Factory, rc config.RuleConfig, kind Kind) (*Rule, error) {
	limiter, err := factory.Limiter(rc.Algorithm, rc.MaxRequests, rc.Window.Duration())
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rc.Name, err)
	}
	keyFunc, err := ratelimit.KeyFuncFor(rc.KeyBy)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rc.Name, err)
	}
	switch kind {
	case KindGlobal:
		return NewGlobalRule(rc.Name, limiter, keyFunc), nil
	case KindExactPath:
		return NewExactPathRule(rc.Name, rc.Path, limiter, keyFunc, rc.Methods)
	case KindPattern:
		return NewPatternRule(rc.Name, rc.Pattern, limiter, keyFunc, rc.Methods)
	default:
		return nil, fmt.Errorf("rule %s: unsupported kind %d", rc.Name, kind)
	}
}
