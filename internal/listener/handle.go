// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package listener

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/metrics"
)

// State is the lifecycle state of a ServerHandle.
type State int32

const (
	// Created: bound but not yet serving.
	Created State = iota
	// Listening: serving requests.
	Listening
	// Closed: stopped. A closed handle is never reused.
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Listening:
		return "listening"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ServerHandle is one bound listener and the HTTP server serving it.
type ServerHandle struct {
	name     string
	listener net.Listener
	server   *http.Server
	logger   zerolog.Logger

	mu        sync.Mutex
	state     State
	observers map[uint64]func(error)
	nextID    uint64
	pending   []error

	serveDone chan struct{}
}

func newHandle(name string, ln net.Listener, server *http.Server, logger zerolog.Logger) *ServerHandle {
	return &ServerHandle{
		name:      name,
		listener:  ln,
		server:    server,
		logger:    logger,
		state:     Created,
		observers: make(map[uint64]func(error)),
		serveDone: make(chan struct{}),
	}
}

// Name returns the listener name.
func (h *ServerHandle) Name() string { return h.name }

// Addr returns the bound address. With port 0 this carries the port the
// kernel picked.
func (h *ServerHandle) Addr() net.Addr { return h.listener.Addr() }

// State returns the current state.
func (h *ServerHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Observe registers fn to be called with any runtime error the server hits
// after startup. If an error already fired before any observer was attached,
// fn receives it right away. The returned function detaches fn.
// Observers on a closed handle are never called.
func (h *ServerHandle) Observe(fn func(error)) (cancel func()) {
	h.mu.Lock()
	if h.state == Closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.observers[id] = fn
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, err := range pending {
		fn(err)
	}

	return func() {
		h.mu.Lock()
		delete(h.observers, id)
		h.mu.Unlock()
	}
}

// serve starts the HTTP server on the bound listener.
func (h *ServerHandle) serve() {
	h.mu.Lock()
	h.state = Listening
	h.mu.Unlock()
	metrics.ListenersListening.Inc()

	go func() {
		defer close(h.serveDone)

		var err error
		if h.server.TLSConfig != nil {
			// Certificates come from TLSConfig.
			err = h.server.ServeTLS(h.listener, "", "")
		} else {
			err = h.server.Serve(h.listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.fail(err)
		}
	}()
}

// fail delivers a runtime error to every observer, or keeps it until the
// first observer attaches.
func (h *ServerHandle) fail(err error) {
	wrapped := fmt.Errorf("%w: listener %s: %w", ErrRuntime, h.name, err)
	metrics.ListenerRuntimeErrors.WithLabelValues(h.name).Inc()

	h.mu.Lock()
	if h.state == Closed {
		h.mu.Unlock()
		h.logger.Debug().Err(err).Msg("Listener error after close ignored")
		return
	}
	if len(h.observers) == 0 {
		h.pending = append(h.pending, wrapped)
		h.mu.Unlock()
		h.logger.Error().Err(err).Msg("Listener failed before any observer attached")
		return
	}
	fns := make([]func(error), 0, len(h.observers))
	for _, fn := range h.observers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	h.logger.Error().Err(err).Msg("Listener failed")
	for _, fn := range fns {
		fn(wrapped)
	}
}

// markClosed moves the handle to Closed and reports whether it was open.
func (h *ServerHandle) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Closed {
		return false
	}
	wasListening := h.state == Listening
	h.state = Closed
	if wasListening {
		metrics.ListenersListening.Dec()
	}
	return true
}

// clearObservers detaches every observer and drops pending errors.
func (h *ServerHandle) clearObservers() {
	h.mu.Lock()
	h.observers = make(map[uint64]func(error))
	h.pending = nil
	h.mu.Unlock()
}

// observerCount is used by tests.
func (h *ServerHandle) observerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}
