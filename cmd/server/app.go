// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/logging"
)

// newApp is the application served by the bundled worker. Real deployments
// embed the worker package and pass their own handler.
func newApp(logger zerolog.Logger) http.Handler {
	started := time.Now()
	hostname, _ := os.Hostname()

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service":  "lifeline",
			"pid":      os.Getpid(),
			"hostname": hostname,
			"uptime":   time.Since(started).Round(time.Second).String(),
		})
	})
	r.Get("/echo/{word}", func(w http.ResponseWriter, req *http.Request) {
		logging.Ctx(req.Context()).Debug().Str("word", chi.URLParam(req, "word")).Msg("echo")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(chi.URLParam(req, "word") + "\n"))
	})

	logger.Debug().Msg("Application routes registered")
	return r
}
