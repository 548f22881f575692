// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Badger opens an embedded BadgerDB key-value store.
type Badger struct {
	Path string

	// InMemory skips the filesystem entirely. Used by tests.
	InMemory bool

	logger zerolog.Logger
}

// Connect opens the store. badger.Open does not take a context, so it runs
// in its own goroutine; if ctx ends first the store is closed as soon as
// the open completes.
func (b *Badger) Connect(ctx context.Context) (Conn, error) {
	opts := badger.DefaultOptions(b.Path)
	if b.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's default logger writes to stderr outside the structured stream.
	opts.Logger = nil

	type result struct {
		db  *badger.DB
		err error
	}
	done := make(chan result, 1)
	go func() {
		db, err := badger.Open(opts)
		done <- result{db, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: open badger %s: %w", ErrUnavailable, b.Path, r.err)
		}
		b.logger.Info().Str("path", b.Path).Bool("in_memory", b.InMemory).Msg("Storage connected")
		return &badgerConn{db: r.db, logger: b.logger}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.db.Close()
			}
		}()
		return nil, fmt.Errorf("%w: open badger %s: %w", ErrUnavailable, b.Path, ctx.Err())
	}
}

type badgerConn struct {
	db     *badger.DB
	logger zerolog.Logger
}

var errBadgerClosed = errors.New("badger is closed")

// Ping runs an empty read transaction.
func (c *badgerConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.db.IsClosed() {
		return errBadgerClosed
	}
	return c.db.View(func(*badger.Txn) error { return nil })
}

func (c *badgerConn) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	c.logger.Info().Msg("Storage closed")
	return nil
}
