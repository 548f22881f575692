// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package metrics provides Prometheus collectors for Lifeline.

Collectors are registered with the default registry through promauto, so
promhttp.Handler() exposes them without further wiring. The worker serves
them at /metrics on its secure listener; the supervisor serves them on
supervisor.metrics_addr when configured.

# Available Metrics

Listeners:
  - lifeline_listener_bind_attempts_total{listener,outcome}
  - lifeline_listeners_listening
  - lifeline_listener_runtime_errors_total{listener}

Shutdown:
  - lifeline_shutdown_step_duration_seconds{step}
  - lifeline_shutdown_step_failures_total{step}

Worker:
  - lifeline_worker_ready
  - lifeline_storage_degraded
  - lifeline_storage_health_checks_total{result}
  - lifeline_http_requests_total{method,route,status}
  - lifeline_http_request_duration_seconds{method,route}
  - lifeline_http_active_requests

Supervisor:
  - lifeline_worker_starts_total
  - lifeline_worker_restarts_total{reason}
  - lifeline_worker_exits_total{code,description}
  - lifeline_worker_uptime_seconds
  - lifeline_worker_spins_total

Control protocol:
  - lifeline_control_messages_total{direction,action}
  - lifeline_control_protocol_violations_total
*/
package metrics
