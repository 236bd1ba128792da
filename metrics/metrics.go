// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay
	ClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_clients_connected",
			Help: "Current number of clients registered with the edit relay",
		},
	)

	EditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_edits_total",
			Help: "Edit events processed by the relay",
		},
		[]string{"origin", "result"}, // origin: local, remote; result: accepted, rejected, dropped
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-client message deliveries attempted by the relay",
		},
		[]string{"result"}, // sent, dropped, gone
	)

	// Upload
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_requests_total",
			Help: "Archive uploads by outcome",
		},
		[]string{"result"}, // rendered, parse_error, parser_failed, render_error, too_large, bad_request
	)

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Bus
	BusMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_total",
			Help: "Edits exchanged with other relay instances",
		},
		[]string{"direction", "result"}, // direction: out, in
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
