// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventflow_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventflow_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Bookings counts booking transitions and rejections by outcome
	// (created, confirmed, cancelled, sold_out, capacity, ...).
	Bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventflow_bookings_total",
			Help: "Booking operations by outcome",
		},
		[]string{"outcome"},
	)

	PaymentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventflow_payment_gateway_calls_total",
			Help: "Payment processor calls by provider, operation and result",
		},
		[]string{"provider", "operation", "result"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventflow_payment_breaker_state",
			Help: "Circuit breaker state per payment provider",
		},
		[]string{"provider"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventflow_http_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventflow_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"limiter"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventflow_notifications_total",
			Help: "Broker messages handled by the notification worker",
		},
		[]string{"routing_key", "result"},
	)

	_ = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "eventflow_goroutines",
			Help: "Current number of goroutines",
		},
		func() float64 { return float64(runtime.NumGoroutine()) },
	)
)
