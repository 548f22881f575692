// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/lifeline/internal/logging"
)

// TreeConfig holds service tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration

	// OnPanic, when set, is called for every service panic after the event
	// has been logged. The worker uses it to route panics in its auxiliary
	// goroutines onto the uncaught-panic exit path.
	OnPanic func(service, msg string)
}

// DefaultTreeConfig returns production-ready defaults.
// These values match suture's built-in defaults per pkg.go.dev documentation.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the suture hierarchy hosting the auxiliary goroutines of one
// process (supervisor or worker).
//
// The tree is organized into three layers:
//   - control: signal relay, control channel reader
//   - health: storage health checker, watch-mode file watcher
//   - api: supervisor metrics listener
//
// Those goroutines only post events to the owning event loop; a crash in one
// layer is restarted without touching the others.
type Tree struct {
	root    *suture.Supervisor
	control *suture.Supervisor
	health  *suture.Supervisor
	api     *suture.Supervisor
	logger  zerolog.Logger
	config  TreeConfig
}

// NewTree creates a service tree named name. suture events are logged
// through sutureslog bridged onto logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewTree(name string, logger zerolog.Logger, config TreeConfig) *Tree {
	// Apply defaults for zero values
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// MustHook has a pointer receiver, so we need to take the address.
	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger(logger)}
	logHook := handler.MustHook()
	onPanic := config.OnPanic
	eventHook := func(e suture.Event) {
		logHook(e)
		if p, ok := e.(suture.EventServicePanic); ok && onPanic != nil {
			onPanic(p.ServiceName, p.PanicMsg)
		}
	}

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Child supervisors inherit the EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New(name, rootSpec)
	control := suture.New("control-layer", childSpec)
	health := suture.New("health-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(control)
	root.Add(health)
	root.Add(api)

	return &Tree{
		root:    root,
		control: control,
		health:  health,
		api:     api,
		logger:  logger,
		config:  config,
	}
}

// Root returns the root supervisor for direct access if needed.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddControlService adds a service to the control layer.
// Use this for signal relays and control channel readers.
func (t *Tree) AddControlService(svc suture.Service) suture.ServiceToken {
	return t.control.Add(svc)
}

// AddHealthService adds a service to the health layer.
// Use this for the storage health checker and the watch-mode watcher.
func (t *Tree) AddHealthService(svc suture.Service) suture.ServiceToken {
	return t.health.Add(svc)
}

// AddAPIService adds a service to the api layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// RemoveHealthService removes a service added with AddHealthService and
// waits up to the shutdown timeout for it to return. Removing from a tree
// that is not running is a no-op.
func (t *Tree) RemoveHealthService(token suture.ServiceToken) error {
	err := t.health.RemoveAndWait(token, t.config.ShutdownTimeout)
	if errors.Is(err, suture.ErrSupervisorNotStarted) || errors.Is(err, suture.ErrSupervisorNotRunning) {
		return nil
	}
	return err
}

// Serve starts the tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine.
// Returns a channel that receives the error (or nil) when the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport returns information about services that failed to stop
// within the configured shutdown timeout. It blocks until the tree has
// stopped, so call it only after ServeBackground's channel has fired.
//
// suture reports only a supervisor's direct children, so the layers are
// asked as well.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	var all []suture.UnstoppedService
	for _, sup := range []*suture.Supervisor{t.root, t.control, t.health, t.api} {
		report, err := sup.UnstoppedServiceReport()
		if err != nil {
			return all, err
		}
		all = append(all, report...)
	}
	return all, nil
}

// LogUnstopped logs every service that outlived the shutdown timeout and
// returns how many there were. Same precondition as UnstoppedServiceReport.
func (t *Tree) LogUnstopped() int {
	report, err := t.UnstoppedServiceReport()
	if err != nil {
		t.logger.Warn().Err(err).Msg("Unstopped service report unavailable")
		return 0
	}
	for _, u := range report {
		t.logger.Warn().
			Str("service", u.Name).
			Dur("timeout", t.config.ShutdownTimeout).
			Msg("Service did not stop in time")
	}
	return len(report)
}
