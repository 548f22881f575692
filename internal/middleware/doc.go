// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

// Package middleware provides the chi middleware mounted in front of the
// worker's HTTP shell: request IDs with a request-scoped logger, and
// Prometheus request instrumentation.
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID(logger))
//	r.Use(middleware.PrometheusMetrics)
package middleware
