// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/lifeline/internal/exitcode"
)

var (
	// Listener Metrics
	ListenerBindAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_listener_bind_attempts_total",
			Help: "Total number of listener bind attempts by outcome",
		},
		[]string{"listener", "outcome"}, // "success", "address_in_use", "error"
	)

	ListenersListening = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifeline_listeners_listening",
			Help: "Current number of bound and serving listeners",
		},
	)

	ListenerRuntimeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_listener_runtime_errors_total",
			Help: "Total number of listener errors after startup",
		},
		[]string{"listener"},
	)

	// Shutdown Metrics
	ShutdownStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifeline_shutdown_step_duration_seconds",
			Help:    "Duration of each shutdown step in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"step"}, // "listeners", "storage", "subscriptions"
	)

	ShutdownStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_shutdown_step_failures_total",
			Help: "Total number of failed shutdown steps",
		},
		[]string{"step"},
	)

	// Worker Bootstrap Metrics
	WorkerReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifeline_worker_ready",
			Help: "1 once every listener is bound and readiness was signaled",
		},
	)

	StorageDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifeline_storage_degraded",
			Help: "1 when the worker runs without a storage connection",
		},
	)

	StorageHealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_storage_health_checks_total",
			Help: "Total number of storage health checks by result",
		},
		[]string{"result"}, // "ok", "error", "circuit_open"
	)

	// Supervisor Metrics
	WorkerStarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_worker_starts_total",
			Help: "Total number of worker processes started",
		},
	)

	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_worker_restarts_total",
			Help: "Total number of worker restarts by reason",
		},
		[]string{"reason"}, // "crash", "requested", "watch"
	)

	WorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_worker_exits_total",
			Help: "Total number of worker exits by exit code",
		},
		[]string{"code", "description"},
	)

	WorkerUptime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifeline_worker_uptime_seconds",
			Help:    "Worker uptime at exit in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 3600, 86400},
		},
	)

	WorkerSpins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_worker_spins_total",
			Help: "Total number of worker exits below the minimum uptime",
		},
	)

	// Control Protocol Metrics
	ControlMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_control_messages_total",
			Help: "Total number of control messages by direction and action",
		},
		[]string{"direction", "action"}, // direction: "inbound", "outbound"
	)

	ControlProtocolViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_control_protocol_violations_total",
			Help: "Total number of malformed or unexpected control messages",
		},
	)

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_http_requests_total",
			Help: "Total number of HTTP requests served by the worker",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifeline_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifeline_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_http_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
	)

	// Event stream
	EventStreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifeline_event_stream_clients",
			Help: "Connected supervisor event stream clients",
		},
	)

	EventStreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_event_stream_dropped_total",
			Help: "Events dropped because the stream or a client fell behind",
		},
	)
)

// RecordBindAttempt records one bind attempt.
func RecordBindAttempt(listener, outcome string) {
	ListenerBindAttempts.WithLabelValues(listener, outcome).Inc()
}

// RecordShutdownStep records the duration of a shutdown step and whether it failed.
func RecordShutdownStep(step string, duration time.Duration, failed bool) {
	ShutdownStepDuration.WithLabelValues(step).Observe(duration.Seconds())
	if failed {
		ShutdownStepFailures.WithLabelValues(step).Inc()
	}
}

// RecordWorkerExit records a worker exit with its uptime.
func RecordWorkerExit(code int, uptime time.Duration) {
	WorkerExits.WithLabelValues(strconv.Itoa(code), exitcode.Describe(code)).Inc()
	WorkerUptime.Observe(uptime.Seconds())
}

// RecordControlMessage records a control message sent or received.
func RecordControlMessage(direction, action string) {
	ControlMessages.WithLabelValues(direction, action).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// SetBool sets g to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
