// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/metrics"
)

// Step names, in execution order.
const (
	StepListeners     = "listeners"
	StepStorage       = "storage"
	StepSubscriptions = "subscriptions"
)

// Listeners stops every bound listener. *listener.Manager satisfies it.
type Listeners interface {
	StopAll(ctx context.Context) error
}

// StepResult is the outcome of one teardown step.
type StepResult struct {
	Name     string
	Err      error
	Duration time.Duration
	Skipped  bool
}

// Result is the outcome of a teardown run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step failed.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the step errors, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Coordinator tears the worker down in a fixed order:
//
//  1. stop every listener (in-flight requests drain, then fail fast)
//  2. close the storage connection
//  3. dispose every subscription in the registry
//
// A failing step is logged and recorded; later steps still run. The
// sequence runs at most once per Coordinator: callers that arrive while it
// runs wait for it, and callers that arrive afterwards get the same Result
// without any further listener or storage calls.
type Coordinator struct {
	logger          zerolog.Logger
	listeners       Listeners
	registry        *Registry
	listenerTimeout time.Duration

	mu      sync.Mutex
	storage io.Closer
	started bool

	once   sync.Once
	done   chan struct{}
	result *Result
}

// NewCoordinator creates a coordinator. listenerTimeout bounds the drain of
// all listeners together.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewCoordinator(logger zerolog.Logger, listeners Listeners, registry *Registry, listenerTimeout time.Duration) *Coordinator {
	if listenerTimeout <= 0 {
		listenerTimeout = 10 * time.Second
	}
	return &Coordinator{
		logger:          logger.With().Str("component", "shutdown").Logger(),
		listeners:       listeners,
		registry:        registry,
		listenerTimeout: listenerTimeout,
		done:            make(chan struct{}),
	}
}

// SetStorage hands the open storage connection to the coordinator. It is
// ignored once teardown has started; the caller then still owns conn.
func (c *Coordinator) SetStorage(conn io.Closer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return false
	}
	c.storage = conn
	return true
}

// Done is closed when teardown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown runs teardown, or waits for the run already in progress, and
// returns its Result. It never panics and never returns an error; inspect
// the Result instead. reason is logged.
//
// Cancellation of ctx does not cut teardown short; its values are kept and
// the listener drain gets its own timeout.
func (c *Coordinator) Shutdown(ctx context.Context, reason string) *Result {
	c.once.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()

		c.result = c.run(context.WithoutCancel(ctx), reason)
		close(c.done)
	})
	<-c.done
	return c.result
}

func (c *Coordinator) run(ctx context.Context, reason string) *Result {
	c.logger.Info().Str("reason", reason).Msg("Shutting down")
	start := time.Now()

	res := &Result{}
	res.Steps = append(res.Steps,
		c.step(StepListeners, func() (bool, error) {
			if c.listeners == nil {
				return true, nil
			}
			lctx, cancel := context.WithTimeout(ctx, c.listenerTimeout)
			defer cancel()
			return false, c.listeners.StopAll(lctx)
		}),
		c.step(StepStorage, func() (bool, error) {
			c.mu.Lock()
			conn := c.storage
			c.storage = nil
			c.mu.Unlock()
			if conn == nil {
				return true, nil
			}
			return false, conn.Close()
		}),
		c.step(StepSubscriptions, func() (bool, error) {
			if c.registry == nil {
				return true, nil
			}
			return false, c.registry.DisposeAll()
		}),
	)

	event := c.logger.Info()
	if res.Failed() {
		event = c.logger.Error().Err(res.Err())
	}
	event.Dur("duration", time.Since(start)).Msg("Shutdown complete")
	return res
}

// step runs fn, turning a panic into a step failure.
func (c *Coordinator) step(name string, fn func() (skipped bool, err error)) (sr StepResult) {
	sr.Name = name
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			sr.Err = fmt.Errorf("panic: %v", rec)
			sr.Skipped = false
		}
		sr.Duration = time.Since(start)

		if !sr.Skipped {
			metrics.RecordShutdownStep(name, sr.Duration, sr.Err != nil)
		}
		switch {
		case sr.Err != nil:
			c.logger.Error().Err(sr.Err).Str("step", name).Dur("duration", sr.Duration).Msg("Shutdown step failed")
		case sr.Skipped:
			c.logger.Debug().Str("step", name).Msg("Shutdown step skipped")
		default:
			c.logger.Debug().Str("step", name).Dur("duration", sr.Duration).Msg("Shutdown step complete")
		}
	}()

	sr.Skipped, sr.Err = fn()
	return sr
}
