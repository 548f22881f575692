// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

// Package storage is the worker's storage connection: a Store that opens a
// Conn, and a HealthChecker that watches it.
//
// Two embedded drivers are provided, selected by storage.driver:
//   - duckdb: a DuckDB database file through database/sql
//   - badger: a BadgerDB key-value directory
//
// The application's schema and queries live outside this package; the
// worker bootstrap only connects at startup and closes during shutdown.
// Every connect failure wraps ErrUnavailable.
package storage
