// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/lifeline/internal/middleware"
)

type statusResponse struct {
	Status     string `json:"status"`
	State      string `json:"state"`
	InstanceID string `json:"instance_id"`
}

// router builds the shell served by the secured listener: liveness,
// readiness and metrics endpoints, with the application mounted at "/".
// CORS and rate limiting apply to the application only, never to probes.
func (b *Bootstrap) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID(b.logger))
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", b.handleHealth)
	r.Get("/readyz", b.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if b.app != nil {
		l := b.cfg.Listeners
		r.Group(func(r chi.Router) {
			r.Use(middleware.CORS(l.CORSOrigins))
			r.Use(middleware.RateLimit(l.RateLimit, l.RateLimitWindow))
			r.Mount("/", b.app)
		})
	}
	return r
}

func (b *Bootstrap) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.writeStatus(w, http.StatusOK, "ok")
}

// handleReady reports 503 until the worker is Ready, while storage is
// degraded, and while storage health checks fail.
func (b *Bootstrap) handleReady(w http.ResponseWriter, _ *http.Request) {
	switch {
	case b.State() != StateReady:
		b.writeStatus(w, http.StatusServiceUnavailable, "not_ready")
	case b.degraded.Load():
		b.writeStatus(w, http.StatusServiceUnavailable, "degraded")
	case b.health != nil && !b.health.Healthy():
		b.writeStatus(w, http.StatusServiceUnavailable, "storage_unhealthy")
	default:
		b.writeStatus(w, http.StatusOK, "ready")
	}
}

func (b *Bootstrap) writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusResponse{
		Status:     status,
		State:      b.State().String(),
		InstanceID: b.id,
	})
}
