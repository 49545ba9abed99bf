// Package dispatch resolves which rate-limit rules apply to a request and
// checks them in a fixed precedence order.
package dispatch

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/arkadyev/reqguard/internal/ratelimit"
)

// Kind discriminates the rule variants. Rules are dispatched by an explicit
// switch on Kind so evaluation order stays visible and testable.
type Kind int

const (
	// KindGlobal applies to every non-bypassed request.
	KindGlobal Kind = iota

	// KindExactPath matches the literal request path.
	KindExactPath

	// KindPattern matches the path against a compiled regular expression.
	KindPattern

	// KindPredicate matches via an arbitrary request predicate.
	KindPredicate
)

// String returns the rule kind name.
func (k Kind) String() string {
	switch k {
	case KindGlobal:
		return "global"
	case KindExactPath:
		return "path"
	case KindPattern:
		return "pattern"
	case KindPredicate:
		return "predicate"
	default:
		return "unknown"
	}
}

// Rule is one admission rule. Rules are created at startup and read-only
// afterwards.
type Rule struct {
	Name    string
	Kind    Kind
	Limiter ratelimit.Limiter

	// Override, when set, is passed through to the limiter on every check.
	Override *ratelimit.Override

	// KeyFunc extracts the client identity. The rule name is prepended so
	// rules never share window state.
	KeyFunc ratelimit.KeyFunc

	// Path is the literal path for KindExactPath.
	Path string

	// Pattern is the compiled expression for KindPattern.
	Pattern *regexp.Regexp

	// Predicate is the match function for KindPredicate.
	Predicate func(r *http.Request) bool

	// Methods restricts the rule to the listed HTTP methods; empty means all.
	Methods map[string]struct{}
}

// NewExactPathRule creates a literal-path rule.
func NewExactPathRule(name, path string, limiter ratelimit.Limiter, keyFunc ratelimit.KeyFunc, methods []string) (*Rule, error) {
	if path == "" {
		return nil, fmt.Errorf("rule %s: path is required", name)
	}
	return &Rule{
		Name:    name,
		Kind:    KindExactPath,
		Path:    path,
		Limiter: limiter,
		KeyFunc: keyFunc,
		Methods: methodSet(methods),
	}, nil
}

// NewPatternRule creates a regular-expression rule. Compilation failures
// are startup errors.
func NewPatternRule(name, pattern string, limiter ratelimit.Limiter, keyFunc ratelimit.KeyFunc, methods []string) (*Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid pattern: %w", name, err)
	}
	return &Rule{
		Name:    name,
		Kind:    KindPattern,
		Pattern: re,
		Limiter: limiter,
		KeyFunc: keyFunc,
		Methods: methodSet(methods),
	}, nil
}

// NewPredicateRule creates a rule matched by an arbitrary request predicate.
func NewPredicateRule(name string, predicate func(r *http.Request) bool, limiter ratelimit.Limiter, keyFunc ratelimit.KeyFunc) (*Rule, error) {
	if predicate == nil {
		return nil, fmt.Errorf("rule %s: predicate is required", name)
	}
	return &Rule{
		Name:      name,
		Kind:      KindPredicate,
		Predicate: predicate,
		Limiter:   limiter,
		KeyFunc:   keyFunc,
	}, nil
}

// NewGlobalRule creates the rule applied to every non-bypassed request.
func NewGlobalRule(name string, limiter ratelimit.Limiter, keyFunc ratelimit.KeyFunc) *Rule {
	return &Rule{
		Name:    name,
		Kind:    KindGlobal,
		Limiter: limiter,
		KeyFunc: keyFunc,
	}
}

// matches reports whether the rule applies to the request.
func (r *Rule) matches(req *http.Request) bool {
	if len(r.Methods) > 0 {
		if _, ok := r.Methods[req.Method]; !ok {
			return false
		}
	}
	switch r.Kind {
	case KindGlobal:
		return true
	case KindExactPath:
		return req.URL.Path == r.Path
	case KindPattern:
		return r.Pattern.MatchString(req.URL.Path)
	case KindPredicate:
		return r.Predicate(req)
	default:
		return false
	}
}

// key derives the namespaced rate-limit key for the request.
func (r *Rule) key(req *http.Request) string {
	return r.Name + ":" + r.KeyFunc(req)
}

func methodSet(methods []string) map[string]struct{} {
	if len(methods) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return set
}
