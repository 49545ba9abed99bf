package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MiddlewareMetrics holds Prometheus metrics for middleware operations.
type MiddlewareMetrics struct {
	admissionAllowed  prometheus.Counter
	admissionRejected *prometheus.CounterVec

	corsRequestsTotal *prometheus.CounterVec

	securityHeadersApplied prometheus.Counter

	panicsRecovered prometheus.Counter
}

var (
	middlewareMetrics     *MiddlewareMetrics
	middlewareMetricsOnce sync.Once
)

// GetMiddlewareMetrics returns the singleton middleware metrics instance.
func GetMiddlewareMetrics() *MiddlewareMetrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = newMiddlewareMetrics()
	})
	return middlewareMetrics
}

func newMiddlewareMetrics() *MiddlewareMetrics {
	return &MiddlewareMetrics{
		admissionAllowed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reqguard",
				Subsystem: "middleware",
				Name:      "admission_allowed_total",
				Help:      "Requests admitted by the rate limit dispatcher.",
			},
		),
		admissionRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reqguard",
				Subsystem: "middleware",
				Name:      "admission_rejected_total",
				Help:      "Requests rejected by the rate limit dispatcher.",
			},
			[]string{"rule"},
		),
		corsRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reqguard",
				Subsystem: "middleware",
				Name:      "cors_requests_total",
				Help:      "CORS requests by type.",
			},
			[]string{"type"},
		),
		securityHeadersApplied: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reqguard",
				Subsystem: "middleware",
				Name:      "security_headers_applied_total",
				Help:      "Responses that received the protective header set.",
			},
		),
		panicsRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reqguard",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Panics recovered in the middleware chain.",
			},
		),
	}
}
