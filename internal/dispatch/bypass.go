package dispatch

import (
	"fmt"
	"net/http"
	"net/netip"
	"regexp"

	"github.com/arkadyev/reqguard/internal/config"
)

// Bypass exempts trusted traffic from all admission rules. A bypassed
// request consumes no window capacity anywhere.
type Bypass struct {
	ips        map[netip.Addr]struct{}
	paths      map[string]struct{}
	uaPatterns []*regexp.Regexp
	predicate  func(r *http.Request) bool
}

// NewBypass builds the bypass set from configuration. IPs and user-agent
// patterns that do not parse are startup errors.
func NewBypass(cfg config.BypassConfig) (*Bypass, error) {
	b := &Bypass{
		ips:   make(map[netip.Addr]struct{}, len(cfg.IPs)),
		paths: make(map[string]struct{}, len(cfg.Paths)),
	}
	for _, raw := range cfg.IPs {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("bypass ip %q: %w", raw, err)
		}
		b.ips[addr.Unmap()] = struct{}{}
	}
	for _, p := range cfg.Paths {
		b.paths[p] = struct{}{}
	}
	for _, pat := range cfg.UserAgents {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("bypass user-agent %q: %w", pat, err)
		}
		b.uaPatterns = append(b.uaPatterns, re)
	}
	return b, nil
}

// SetPredicate installs an additional caller-supplied bypass check.
func (b *Bypass) SetPredicate(fn func(r *http.Request) bool) {
	b.predicate = fn
}

// Matches reports whether the request is exempt from admission control.
func (b *Bypass) Matches(r *http.Request, clientIP string) bool {
	if len(b.ips) > 0 {
		if addr, err := netip.ParseAddr(clientIP); err == nil {
			if _, ok := b.ips[addr.Unmap()]; ok {
				return true
			}
		}
	}
	if _, ok := b.paths[r.URL.Path]; ok {
		return true
	}
	if len(b.uaPatterns) > 0 {
		ua := r.UserAgent()
		for _, re := range b.uaPatterns {
			if re.MatchString(ua) {
				return true
			}
		}
	}
	if b.predicate != nil && b.predicate(r) {
		return true
	}
	return false
}
