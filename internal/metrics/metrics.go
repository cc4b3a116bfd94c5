// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookd",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Count of booking API calls by method and status code (0 = transport failure).",
		},
		[]string{"method", "code"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookd",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of booking API calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	operationSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookd",
			Subsystem: "lifecycle",
			Name:      "settled_total",
			Help:      "Count of settled lifecycle operations by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	reconcileAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookd",
			Subsystem: "reconcile",
			Name:      "attempts_total",
			Help:      "Count of booking list fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	reconcileSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookd",
			Subsystem: "reconcile",
			Name:      "settled_total",
			Help:      "Count of confirmation views reaching a terminal phase.",
		},
		[]string{"phase"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			gatewayRequests,
			gatewayDuration,
			operationSettled,
			reconcileAttempts,
			reconcileSettled,
		)
	})
}

// ObserveRequest records one gateway call.
func ObserveRequest(method string, code int, elapsed time.Duration) {
	gatewayRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	gatewayDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func IncSettled(resource, outcome string) {
	operationSettled.WithLabelValues(resource, outcome).Inc()
}

func IncReconcileAttempt(outcome string) {
	reconcileAttempts.WithLabelValues(outcome).Inc()
}

func IncReconcileSettled(phase string) {
	reconcileSettled.WithLabelValues(phase).Inc()
}
