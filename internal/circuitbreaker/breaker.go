// Package circuitbreaker protects downstream targets with a
// consecutive-failure circuit breaker built on sony/gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/util"
)

// cbTracer is the OTEL tracer used for breaker state transitions.
var cbTracer = otel.Tracer("reqguard/circuitbreaker")

// State is the externally visible breaker state.
type State int

const (
	// StateClosed admits all requests.
	StateClosed State = iota

	// StateOpen rejects all requests without touching the target.
	StateOpen

	// StateHalfOpen admits a single trial request.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// StateFunc is called on every state transition.
type StateFunc func(name string, from, to State)

// Breaker guards one downstream target. It opens after a configured
// number of consecutive failures, stays open for the recovery timeout,
// then admits one trial request. A successful trial closes the breaker;
// a failed trial reopens it and restarts the timeout.
type Breaker struct {
	cb            *gobreaker.CircuitBreaker
	logger        observability.Logger
	stateCallback StateFunc
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the breaker logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithStateCallback registers a state-transition callback.
func WithStateCallback(fn StateFunc) Option {
	return func(b *Breaker) {
		b.stateCallback = fn
	}
}

// New creates a breaker for the named target.
func New(name string, failureThreshold int, recoveryTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	threshold := safeIntToUint32(failureThreshold)

	settings := gobreaker.Settings{
		Name: name,
		// A single trial request probes the target in half-open.
		MaxRequests: 1,
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.onStateChange(name, fromGobreakerState(from), fromGobreakerState(to))
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func (b *Breaker) onStateChange(name string, from, to State) {
	b.logger.Info("circuit breaker state change",
		observability.String("name", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	m := GetBreakerMetrics()
	m.Transitions.WithLabelValues(name, from.String(), to.String()).Inc()
	m.State.WithLabelValues(name).Set(float64(to))

	// Record the transition as a span event so it shows up in traces.
	_, span := cbTracer.Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()

	if b.stateCallback != nil {
		b.stateCallback(name, from, to)
	}
}

// Execute runs fn under breaker protection. A returned error counts as a
// failure; a rejection in open state returns util.ErrCircuitOpen.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if err != nil && isOpenErr(err) {
		return res, util.ErrCircuitOpen
	}
	return res, err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return fromGobreakerState(b.cb.State())
}

// Name returns the breaker's target name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// Counts returns the breaker's internal counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// IsOpenErr reports whether err means the breaker refused the request.
func IsOpenErr(err error) bool {
	return errors.Is(err, util.ErrCircuitOpen)
}

func isOpenErr(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
