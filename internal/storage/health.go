// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/lifeline/internal/metrics"
)

// ErrNoConnection is reported by a health checker running without storage.
var ErrNoConnection = errors.New("no storage connection")

// HealthConfig tunes the health checker.
type HealthConfig struct {
	// Interval between background checks.
	Interval time.Duration

	// Timeout for a single ping.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failed pings that opens
	// the circuit.
	FailureThreshold uint32

	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
}

// DefaultHealthConfig returns production defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:         15 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// HealthChecker pings the storage connection periodically behind a circuit
// breaker, so a dead database is not hammered while the worker keeps
// serving. It implements suture.Service.
type HealthChecker struct {
	conn   Conn
	cfg    HealthConfig
	cb     *gobreaker.CircuitBreaker[struct{}]
	logger zerolog.Logger

	healthy atomic.Bool
}

// NewHealthChecker creates a checker for conn. conn may be nil when the
// worker runs degraded; the checker then always reports unhealthy.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewHealthChecker(logger zerolog.Logger, conn Conn, cfg HealthConfig) *HealthChecker {
	def := DefaultHealthConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	h := &HealthChecker{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "storage-health").Logger(),
	}
	h.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "storage-health",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Storage circuit breaker state changed")
		},
	})
	h.healthy.Store(conn != nil)
	return h
}

// Check pings storage once through the breaker and updates Healthy.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.conn == nil {
		h.healthy.Store(false)
		metrics.StorageHealthChecks.WithLabelValues("error").Inc()
		return ErrNoConnection
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	_, err := h.cb.Execute(func() (struct{}, error) {
		return struct{}{}, h.conn.Ping(ctx)
	})

	switch {
	case err == nil:
		metrics.StorageHealthChecks.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.StorageHealthChecks.WithLabelValues("circuit_open").Inc()
	default:
		metrics.StorageHealthChecks.WithLabelValues("error").Inc()
	}

	h.healthy.Store(err == nil)
	return err
}

// Healthy reports the result of the most recent check.
func (h *HealthChecker) Healthy() bool {
	return h.healthy.Load()
}

// Serve implements suture.Service: it checks every Interval until ctx ends.
func (h *HealthChecker) Serve(ctx context.Context) error {
	if h.conn == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.Check(ctx); err != nil && ctx.Err() == nil {
				h.logger.Warn().Err(err).Msg("Storage health check failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (h *HealthChecker) String() string {
	return "storage-health"
}
