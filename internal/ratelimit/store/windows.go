package store

import (
	"sync"
	"time"
)

// Window is the mutable counting state for a single rate-limit key. Callers
// must hold the embedded mutex across the whole check-and-increment so two
// concurrent requests on the same key cannot both observe the last free slot.
type Window struct {
	Mu         sync.Mutex
	Count      int
	Start      time.Time
	LastAccess time.Time

	// Limit and Span record the effective limit applied on the most recent
	// access, so status and statistics reflect per-call overrides.
	Limit int
	Span  time.Duration
}

// WindowStore owns the key to window-state map used by the in-process window
// limiter. It is created at startup and disposed with Close at shutdown; a
// background sweeper reclaims idle entries. Removal is safe because window
// expiry is decided lazily by timestamp comparison on access, never by the
// sweeper invalidating state an in-flight check is using.
type WindowStore struct {
	entries   sync.Map // string -> *Window
	sweepEach time.Duration
	idleTTL   time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// NewWindowStore creates a window store sweeping every sweepEach and
// dropping entries untouched for idleTTL.
func NewWindowStore(sweepEach, idleTTL time.Duration) *WindowStore {
	if sweepEach <= 0 {
		sweepEach = time.Minute
	}
	if idleTTL <= 0 {
		idleTTL = 2 * sweepEach
	}
	s := &WindowStore{
		sweepEach: sweepEach,
		idleTTL:   idleTTL,
		stop:      make(chan struct{}),
	}
	go s.sweep()
	return s
}

// GetOrCreate returns the window for key, creating it on first reference.
func (s *WindowStore) GetOrCreate(key string) *Window {
	if v, ok := s.entries.Load(key); ok {
		return v.(*Window)
	}
	v, _ := s.entries.LoadOrStore(key, &Window{})
	return v.(*Window)
}

// Get returns the window for key without creating one.
func (s *WindowStore) Get(key string) (*Window, bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Window), true
}

// Delete removes the window for key.
func (s *WindowStore) Delete(key string) {
	s.entries.Delete(key)
}

// Range calls fn for every live window until fn returns false.
func (s *WindowStore) Range(fn func(key string, w *Window) bool) {
	s.entries.Range(func(k, v interface{}) bool {
		return fn(k.(string), v.(*Window))
	})
}

// Len returns the number of tracked keys.
func (s *WindowStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Close stops the sweeper. The store remains usable afterwards but no
// longer reclaims idle entries.
func (s *WindowStore) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
}

func (s *WindowStore) sweep() {
	ticker := time.NewTicker(s.sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.entries.Range(func(k, v interface{}) bool {
				w := v.(*Window)
				w.Mu.Lock()
				idle := now.Sub(w.LastAccess) > s.idleTTL
				w.Mu.Unlock()
				if idle {
					s.entries.Delete(k)
				}
				return true
			})
		case <-s.stop:
			return
		}
	}
}
