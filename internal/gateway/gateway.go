// Package gateway assembles the middleware pipeline and owns the HTTP
// server lifecycle.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arkadyev/reqguard/internal/circuitbreaker"
	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/dispatch"
	"github.com/arkadyev/reqguard/internal/middleware"
	"github.com/arkadyev/reqguard/internal/observability"
)

// State represents the gateway lifecycle state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway wires the admission pipeline in front of a downstream handler
// and runs the HTTP listener.
type Gateway struct {
	config     *config.Config
	logger     observability.Logger
	dispatcher *dispatch.Dispatcher
	breakers   *circuitbreaker.Registry
	downstream http.Handler
	handler    http.Handler
	httpServer *http.Server
	state      atomic.Int32

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithDownstream sets the handler invoked after admission.
func WithDownstream(h http.Handler) Option {
	return func(g *Gateway) {
		g.downstream = h
	}
}

// WithDispatcher sets the admission dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(g *Gateway) {
		g.dispatcher = d
	}
}

// WithBreakerRegistry sets the circuit breaker registry.
func WithBreakerRegistry(r *circuitbreaker.Registry) Option {
	return func(g *Gateway) {
		g.breakers = r
	}
}

// New creates a gateway and assembles the middleware chain.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	g := &Gateway{
		config:          cfg,
		logger:          observability.NopLogger(),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.downstream == nil {
		return nil, fmt.Errorf("downstream handler is required")
	}
	if g.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if t := cfg.Server.ShutdownTimeout.Duration(); t > 0 {
		g.shutdownTimeout = t
	}

	g.handler = g.buildChain()
	g.state.Store(int32(StateStopped))
	return g, nil
}

// buildChain assembles the pipeline. Order matters: request metadata and
// logging wrap everything, protective headers and CORS run before
// admission so rejected responses still carry them, and the breaker sits
// last so only admitted requests count against the downstream.
func (g *Gateway) buildChain() http.Handler {
	chain := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.Logging(g.logger),
		middleware.Recovery(g.logger),
		middleware.SecurityHeadersFromConfig(g.config.Security, g.logger),
		middleware.CORSFromConfig(g.config.CORS),
		middleware.Admission(g.dispatcher),
		middleware.CircuitBreakerFromConfig(g.config.CircuitBreaker, g.breakers, g.logger),
	}

	h := g.downstream
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// Handler returns the assembled pipeline, used by tests.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// Start runs the HTTP listener. It blocks until the listener fails or
// Stop is called.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("gateway is not in stopped state")
	}

	g.httpServer = &http.Server{
		Addr:         g.config.Server.Listen,
		Handler:      g.handler,
		ReadTimeout:  g.config.Server.ReadTimeout.Duration(),
		WriteTimeout: g.config.Server.WriteTimeout.Duration(),
	}

	g.logger.Info("starting gateway",
		observability.String("listen", g.config.Server.Listen),
	)
	g.state.Store(int32(StateRunning))

	err := g.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("gateway listener: %w", err)
	}
	return nil
}

// Stop gracefully drains in-flight requests and shuts the listener down.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("gateway is not running")
	}
	defer g.state.Store(int32(StateStopped))

	g.logger.Info("stopping gateway")

	shutdownCtx, cancel := context.WithTimeout(ctx, g.shutdownTimeout)
	defer cancel()

	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}
