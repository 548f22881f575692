// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

// Package logging provides zerolog-based structured logging for Lifeline.
//
// There is no package-level logger. main builds exactly one logger with New
// and passes it by value into every constructor; components derive their
// own child with Component.
//
// # Quick Start
//
//	logger := logging.New(logging.Config{
//	    Level:  cfg.Logging.Level,
//	    Format: cfg.Logging.Format,
//	})
//	sup := supervisor.New(logging.Component(logger, "supervisor"), ...)
//
// # Configuration
//
// Environment Variables (through internal/config):
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false (default: false)
//
// # suture Integration
//
// suture v4 reports supervision events through log/slog. NewSlogLogger wraps
// a zerolog.Logger in an slog.Handler so those events share the process log
// stream:
//
//	tree := supervisor.NewTree(logging.NewSlogLogger(logger), treeCfg)
//
// # Request Scope
//
// The HTTP request-ID middleware stores the request logger in the request
// context; handlers retrieve it with Ctx.
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send(), and prefer structured
// fields over formatted messages:
//
//	log.Info().Int("port", p).Msg("Listening")  // Correct
//	log.Info().Msgf("Listening on %d", p)       // Avoid
package logging
