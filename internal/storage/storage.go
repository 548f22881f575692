// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/config"
)

// ErrUnavailable wraps every connect failure.
var ErrUnavailable = errors.New("storage unavailable")

// Conn is an open storage connection.
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Store opens connections. Connect must honor ctx for the time it spends
// establishing the connection.
type Store interface {
	Connect(ctx context.Context) (Conn, error)
}

// New returns the Store selected by cfg.Driver.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg *config.StorageConfig, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "storage").Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case "duckdb":
		return &DuckDB{
			Path:      cfg.Path,
			MaxMemory: cfg.MaxMemory,
			Threads:   cfg.Threads,
			logger:    logger,
		}, nil
	case "badger":
		return &Badger{Path: cfg.Path, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
