package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BreakerMetrics holds the Prometheus collectors for breaker activity.
type BreakerMetrics struct {
	// Transitions counts state changes by target and edge.
	Transitions *prometheus.CounterVec

	// State exports the current state per target (0=closed, 1=open, 2=half-open).
	State *prometheus.GaugeVec

	// Requests counts requests observed per target and outcome.
	Requests *prometheus.CounterVec
}

var (
	breakerMetrics     *BreakerMetrics
	breakerMetricsOnce sync.Once
)

// GetBreakerMetrics returns the process-wide breaker metrics, registering
// them on first use.
func GetBreakerMetrics() *BreakerMetrics {
	breakerMetricsOnce.Do(func() {
		breakerMetrics = &BreakerMetrics{
			Transitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "reqguard",
					Subsystem: "circuitbreaker",
					Name:      "transitions_total",
					Help:      "Circuit breaker state transitions.",
				},
				[]string{"name", "from", "to"},
			),
			State: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "reqguard",
					Subsystem: "circuitbreaker",
					Name:      "state",
					Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
				},
				[]string{"name"},
			),
			Requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "reqguard",
					Subsystem: "circuitbreaker",
					Name:      "requests_total",
					Help:      "Requests observed by the circuit breaker.",
				},
				[]string{"name", "outcome"},
			),
		}
	})
	return breakerMetrics
}
