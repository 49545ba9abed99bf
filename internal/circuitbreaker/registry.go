package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/arkadyev/reqguard/internal/observability"
)

// Registry creates and tracks breakers per downstream target. Breakers
// are created lazily on first use and share one configuration.
type Registry struct {
	mu               sync.RWMutex
	breakers         map[string]*Breaker
	failureThreshold int
	recoveryTimeout  time.Duration
	logger           observability.Logger
	opts             []Option
}

// NewRegistry creates a registry producing breakers with the given settings.
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration, logger observability.Logger, opts ...Option) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		logger:           logger,
		opts:             opts,
	}
}

// Get returns the breaker for a target, creating it on first use.
func (r *Registry) Get(target string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[target]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[target]; ok {
		return b
	}
	b = New(target, r.failureThreshold, r.recoveryTimeout,
		append([]Option{WithLogger(r.logger)}, r.opts...)...)
	r.breakers[target] = b
	return b
}

// Lookup returns the breaker for a target without creating one.
func (r *Registry) Lookup(target string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[target]
	return b, ok
}

// Reset discards the breaker for a target. The next request creates a
// fresh breaker in closed state. Returns false when no breaker existed.
func (r *Registry) Reset(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.breakers[target]; !ok {
		return false
	}
	delete(r.breakers, target)
	return true
}

// Targets returns the known target names in sorted order.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
