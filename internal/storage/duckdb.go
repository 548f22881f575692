// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" database/sql driver

	"github.com/rs/zerolog"
)

// checkpointTimeout bounds the CHECKPOINT issued before close.
const checkpointTimeout = 30 * time.Second

// DuckDB opens an embedded DuckDB database file.
type DuckDB struct {
	Path      string
	MaxMemory string
	Threads   int

	logger zerolog.Logger
}

// Connect opens the database and pings it.
func (d *DuckDB) Connect(ctx context.Context) (Conn, error) {
	threads := d.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	if dir := filepath.Dir(d.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %w", ErrUnavailable, dir, err)
		}
	}

	// Extension auto-install is disabled so a restricted network cannot
	// stall startup.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		d.Path, threads)
	if d.MaxMemory != "" {
		connStr += "&max_memory=" + d.MaxMemory
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: open duckdb %s: %w", ErrUnavailable, d.Path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping duckdb %s: %w", ErrUnavailable, d.Path, err)
	}

	d.logger.Info().Str("path", d.Path).Int("threads", threads).Msg("Storage connected")
	return &duckConn{db: db, logger: d.logger}, nil
}

type duckConn struct {
	db     *sql.DB
	logger zerolog.Logger
}

func (c *duckConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close flushes the DuckDB WAL with a CHECKPOINT and closes the database.
// A failed checkpoint is logged; only the close error is returned.
func (c *duckConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	if _, err := c.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close duckdb: %w", err)
	}
	c.logger.Info().Msg("Storage closed")
	return nil
}
