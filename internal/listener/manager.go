// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/metrics"
)

var (
	// ErrAddressInUse is returned when every bind attempt found the address
	// in use.
	ErrAddressInUse = errors.New("address in use")

	// ErrBind is returned for bind failures that are not retried, and when
	// the context ends while waiting between attempts.
	ErrBind = errors.New("bind failed")

	// ErrRuntime wraps errors a listener reports after startup.
	ErrRuntime = errors.New("listener runtime error")
)

// Binder opens a network listener. *net.ListenConfig satisfies it.
type Binder interface {
	Listen(ctx context.Context, network, address string) (net.Listener, error)
}

// Spec describes one listener.
type Spec struct {
	// Name identifies the listener. StartListening is idempotent per name.
	Name string
	Host string
	Port int

	// MaxRetries is the total number of bind attempts made while the
	// address is in use. Values below 1 are treated as 1.
	MaxRetries int

	// RetryInterval is the fixed delay between attempts. The delay is
	// constant on purpose; there is no backoff.
	RetryInterval time.Duration

	Handler http.Handler

	// TLSConfig, when set, makes the listener serve HTTPS. It must carry
	// certificates or a GetCertificate callback.
	TLSConfig *tls.Config

	ReadHeaderTimeout time.Duration
}

// Address returns host:port.
func (s Spec) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Manager binds listeners and tracks their handles.
//
// Only the worker bootstrap and the shutdown coordinator call into the
// manager; request handlers must never stop or rebind a listener.
type Manager struct {
	logger zerolog.Logger
	binder Binder

	// startMu serializes StartListening so idempotent re-entry never races
	// a bind in progress.
	startMu sync.Mutex

	mu      sync.Mutex
	handles []*ServerHandle
}

// NewManager creates a listener manager. A nil binder uses net.ListenConfig.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewManager(logger zerolog.Logger, binder Binder) *Manager {
	if binder == nil {
		binder = &net.ListenConfig{}
	}
	return &Manager{
		logger: logger.With().Str("component", "listener").Logger(),
		binder: binder,
	}
}

// StartListening binds spec's address and starts serving.
//
// If a handle with the same name is already listening it is returned as is.
// When the address is in use, StartListening waits RetryInterval and tries
// again, MaxRetries attempts in total; if the address never frees up the
// error wraps ErrAddressInUse and no handle is produced. Any other bind
// error is returned immediately wrapping ErrBind.
func (m *Manager) StartListening(ctx context.Context, spec Spec) (*ServerHandle, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if h := m.lookup(spec.Name); h != nil {
		m.logger.Debug().Str("listener", spec.Name).Msg("Listener already started")
		return h, nil
	}

	log := m.logger.With().Str("listener", spec.Name).Str("addr", spec.Address()).Logger()

	ln, err := m.bind(ctx, spec, log)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Handler:           spec.Handler,
		TLSConfig:         spec.TLSConfig,
		ReadHeaderTimeout: spec.ReadHeaderTimeout,
		ErrorLog:          stdlog.New(log, "", 0),
	}
	if server.Handler == nil {
		server.Handler = http.NotFoundHandler()
	}

	h := newHandle(spec.Name, ln, server, log)
	h.serve()

	m.mu.Lock()
	m.handles = append(m.handles, h)
	m.mu.Unlock()

	log.Info().
		Str("bound", ln.Addr().String()).
		Bool("tls", spec.TLSConfig != nil).
		Msg("Listening")
	return h, nil
}

// bind runs the retry loop.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (m *Manager) bind(ctx context.Context, spec Spec, log zerolog.Logger) (net.Listener, error) {
	attempts := spec.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	addr := spec.Address()

	for attempt := 1; ; attempt++ {
		ln, err := m.binder.Listen(ctx, "tcp", addr)
		if err == nil {
			metrics.RecordBindAttempt(spec.Name, "success")
			return ln, nil
		}

		if !IsAddressInUse(err) {
			metrics.RecordBindAttempt(spec.Name, "error")
			log.Error().Err(err).Int("attempt", attempt).Msg("Bind failed")
			return nil, fmt.Errorf("%w: listener %s on %s: %w", ErrBind, spec.Name, addr, err)
		}

		metrics.RecordBindAttempt(spec.Name, "address_in_use")
		if attempt >= attempts {
			log.Error().Err(err).Int("attempts", attempt).Msg("Address still in use, giving up")
			return nil, fmt.Errorf("%w: listener %s on %s after %d attempts: %w", ErrAddressInUse, spec.Name, addr, attempt, err)
		}

		log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("retry_in", spec.RetryInterval).
			Msg("Address in use, retrying")

		timer := time.NewTimer(spec.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: listener %s on %s: %w", ErrBind, spec.Name, addr, ctx.Err())
		case <-timer.C:
		}
	}
}

// StopListening stops h. The server stops accepting, in-flight requests
// drain until ctx ends, then remaining connections are closed. The
// close-time error is returned, never panicked. Every observer is detached
// afterwards. Stopping a closed handle is a no-op returning nil.
func (m *Manager) StopListening(ctx context.Context, h *ServerHandle) error {
	if h == nil || !h.markClosed() {
		return nil
	}

	err := h.server.Shutdown(ctx)
	if err != nil {
		// Drain did not finish in time; drop what is left.
		err = errors.Join(err, h.server.Close())
	}
	<-h.serveDone

	h.clearObservers()
	m.remove(h)

	if err != nil {
		h.logger.Warn().Err(err).Msg("Listener stopped with error")
		return fmt.Errorf("stop listener %s: %w", h.name, err)
	}
	h.logger.Info().Msg("Listener stopped")
	return nil
}

// StopAll stops every live handle, one after another in start order. A
// failure on one handle does not keep the others from being stopped; all
// errors are joined.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, h := range m.Handles() {
		if err := m.StopListening(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handles returns the live handles in start order.
func (m *Manager) Handles() []*ServerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ServerHandle, len(m.handles))
	copy(out, m.handles)
	return out
}

func (m *Manager) lookup(name string) *ServerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		if h.name == name && h.State() == Listening {
			return h
		}
	}
	return nil
}

func (m *Manager) remove(h *ServerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.handles {
		if cur == h {
			m.handles = append(m.handles[:i], m.handles[i+1:]...)
			return
		}
	}
}

// IsAddressInUse reports whether err is an address-in-use bind failure.
func IsAddressInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
