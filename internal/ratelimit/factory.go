package ratelimit

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/ratelimit/store"
)

// Factory builds limiters from rule configuration over a shared backend and
// owns their lifecycle: every window store and limiter it creates is
// disposed by Close at shutdown.
type Factory struct {
	storeType string
	counters  store.Store
	logger    *zap.Logger

	mu      sync.Mutex
	closers []io.Closer
	windows []*store.WindowStore
}

// NewFactory creates a limiter factory for the configured backend.
func NewFactory(cfg config.StoreConfig, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Factory{
		storeType: cfg.Type,
		logger:    logger,
	}
	if f.storeType == "" {
		f.storeType = config.StoreMemory
	}

	if f.storeType == config.StoreRedis {
		rc := store.DefaultRedisConfig()
		rc.Address = cfg.Redis.Address
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			rc.Prefix = cfg.Redis.Prefix
		}
		rc.Logger = logger

		counters, err := store.NewRedisStore(rc)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		f.counters = counters
		f.closers = append(f.closers, counters)
	}

	return f, nil
}

// Limiter builds a limiter for one rule.
func (f *Factory) Limiter(algorithm string, limit int, window time.Duration) (Limiter, error) {
	switch algorithm {
	case "", config.AlgorithmWindow:
		if f.storeType == config.StoreRedis {
			return NewRedisWindowLimiter(f.counters, limit, window, f.logger), nil
		}
		// Sweep at the window interval; entries idle for two full windows
		// are provably inactive and safe to drop.
		ws := store.NewWindowStore(window, 2*window)
		f.track(ws)
		return NewWindowLimiter(ws, limit, window, WithWindowLogger(f.logger)), nil

	case config.AlgorithmTokenBucket:
		tb := NewTokenBucketLimiter(limit, window, WithBucketLogger(f.logger))
		f.mu.Lock()
		f.closers = append(f.closers, tb)
		f.mu.Unlock()
		return tb, nil

	default:
		return nil, fmt.Errorf("unknown rate limit algorithm %q", algorithm)
	}
}

// KeyFuncFor returns the key extractor for a configured kind.
func KeyFuncFor(kind string) (KeyFunc, error) {
	switch kind {
	case "", config.KeyByIP:
		return IPKeyFunc, nil
	case config.KeyByUser:
		return UserKeyFunc, nil
	case config.KeyByAPIKey:
		return APIKeyFunc, nil
	default:
		return nil, fmt.Errorf("unknown key extractor %q", kind)
	}
}

// Close disposes every store and limiter the factory created.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, ws := range f.windows {
		ws.Close()
	}
	f.closers = nil
	f.windows = nil
	return firstErr
}

func (f *Factory) track(ws *store.WindowStore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, ws)
}
