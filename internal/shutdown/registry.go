// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package shutdown

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry holds the process-level registrations made during startup
// (signal subscriptions, listener observers) so they can be removed in one
// step at the end of teardown.
type Registry struct {
	logger zerolog.Logger

	mu       sync.Mutex
	subs     []subscription
	disposed bool
}

type subscription struct {
	name    string
	dispose func()
}

// NewRegistry creates an empty registry.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Add records a registration and the function that removes it. Adding to a
// registry that was already disposed removes the registration immediately.
func (r *Registry) Add(name string, dispose func()) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		r.logger.Debug().Str("subscription", name).Msg("Registry already disposed, removing immediately")
		if err := safeDispose(name, dispose); err != nil {
			r.logger.Warn().Err(err).Str("subscription", name).Msg("Late subscription removal failed")
		}
		return
	}
	r.subs = append(r.subs, subscription{name: name, dispose: dispose})
	r.mu.Unlock()
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// DisposeAll removes every registration, newest first. It runs once; later
// calls return nil. A panicking dispose function is recovered and reported
// in the returned error; the remaining registrations are still removed.
func (r *Registry) DisposeAll() error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var errs []error
	for i := len(subs) - 1; i >= 0; i-- {
		if err := safeDispose(subs[i].name, subs[i].dispose); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Debug().Int("count", len(subs)).Msg("Subscriptions disposed")
	return errors.Join(errs...)
}

func safeDispose(name string, dispose func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dispose %s: panic: %v", name, rec)
		}
	}()
	dispose()
	return nil
}
