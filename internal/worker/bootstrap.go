// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/config"
	"github.com/tomtom215/lifeline/internal/control"
	"github.com/tomtom215/lifeline/internal/exitcode"
	"github.com/tomtom215/lifeline/internal/listener"
	"github.com/tomtom215/lifeline/internal/metrics"
	"github.com/tomtom215/lifeline/internal/shutdown"
	"github.com/tomtom215/lifeline/internal/storage"
	"github.com/tomtom215/lifeline/internal/supervisor"
	"github.com/tomtom215/lifeline/internal/supervisor/services"
)

// Listener names.
const (
	RedirectListener = "redirect"
	SecureListener   = "secure"
)

// Options configures a Bootstrap. Only Config is required.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Store overrides the driver selected by Config.Storage.
	Store storage.Store

	// Binder overrides the network primitive used by the listener manager.
	Binder listener.Binder

	// Channel is the control channel to the supervisor. Nil runs the worker
	// standalone; readiness then only reaches local waiters.
	Channel control.Channel

	// Signals overrides host signal delivery. Nil subscribes to SIGINT,
	// SIGTERM and SIGHUP.
	Signals <-chan os.Signal

	// App is mounted at "/" on the secured listener.
	App http.Handler
}

type eventKind int

const (
	evSignal eventKind = iota
	evMessage
	evControlError
	evListenerError
	evPanic
)

type event struct {
	kind   eventKind
	sig    os.Signal
	msg    control.Message
	err    error
	source string
}

// Bootstrap sequences one worker process: storage, then listeners, then
// readiness, then waits for a shutdown trigger and tears down through the
// shutdown coordinator. All state transitions happen on the goroutine
// calling Run; signal, control and listener goroutines only post events.
type Bootstrap struct {
	cfg     *config.Config
	logger  zerolog.Logger
	id      string
	debug   bool
	store   storage.Store
	channel control.Channel
	signals <-chan os.Signal
	app     http.Handler
	tls     *tlsSetup

	manager  *listener.Manager
	registry *shutdown.Registry
	coord    *shutdown.Coordinator
	tree     *supervisor.Tree
	health   *storage.HealthChecker

	state    atomic.Int32
	degraded atomic.Bool

	events    chan event
	quit      chan struct{}
	quitOnce  sync.Once
	ready     chan struct{}
	startedAt time.Time
}

// New creates a Bootstrap. It fails only on configuration problems (unknown
// storage driver, unreadable TLS key pair).
func New(opts Options) (*Bootstrap, error) {
	if opts.Config == nil {
		return nil, errors.New("worker: config is required")
	}
	cfg := opts.Config

	store := opts.Store
	if store == nil {
		var err error
		store, err = storage.New(&cfg.Storage, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	tlsSetup, err := newTLSSetup(&cfg.Listeners.TLS)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := opts.Logger.With().Str("component", "worker").Str("instance_id", id).Logger()

	b := &Bootstrap{
		cfg:     cfg,
		logger:  logger,
		id:      id,
		debug:   cfg.Supervisor.Debug,
		store:   store,
		channel: opts.Channel,
		signals: opts.Signals,
		app:     opts.App,
		tls:     tlsSetup,
		events:  make(chan event, 16),
		quit:    make(chan struct{}),
		ready:   make(chan struct{}),
	}

	b.manager = listener.NewManager(logger, opts.Binder)
	b.registry = shutdown.NewRegistry(logger)
	b.coord = shutdown.NewCoordinator(logger, b.manager, b.registry, cfg.Listeners.ShutdownTimeout)

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = 5 * time.Second
	treeCfg.OnPanic = func(service, msg string) {
		b.post(event{kind: evPanic, source: service, err: fmt.Errorf("panic: %s", msg)})
	}
	b.tree = supervisor.NewTree("lifeline-worker", logger, treeCfg)

	return b, nil
}

// Ready is closed once every listener is serving and has a runtime error
// observer attached.
func (b *Bootstrap) Ready() <-chan struct{} {
	return b.ready
}

// State returns the current lifecycle state.
func (b *Bootstrap) State() State {
	return State(b.state.Load())
}

// ID returns the instance id attached to every log line.
func (b *Bootstrap) ID() string {
	return b.id
}

// Listeners returns the live listener handles.
func (b *Bootstrap) Listeners() []*listener.ServerHandle {
	return b.manager.Handles()
}

func (b *Bootstrap) setState(s State) {
	prev := State(b.state.Swap(int32(s)))
	if prev != s {
		b.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Worker state changed")
	}
}

// post hands an event to the loop. Once teardown has begun events are
// dropped, so producers never block a shutting-down worker.
func (b *Bootstrap) post(ev event) {
	select {
	case b.events <- ev:
	case <-b.quit:
	}
}

// Run starts the worker and blocks until it has terminated, returning the
// process exit code. It never panics.
func (b *Bootstrap) Run(ctx context.Context) (code int) {
	b.startedAt = time.Now()
	b.setState(StateStarting)
	b.logger.Info().Int("pid", os.Getpid()).Bool("debug", b.debug).Msg("Worker starting")

	defer func() {
		if r := recover(); r != nil {
			code = b.uncaught(ctx, "run", fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	b.subscribe(ctx)

	b.setState(StateConnectingStorage)
	if !b.connectStorage(ctx) {
		return b.terminate(ctx, "storage unavailable", exitcode.StorageUnavailable, false)
	}

	b.setState(StateStartingListeners)
	handles, err := b.startListeners(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Listener startup failed")
		return b.terminate(ctx, "listener bind failure", exitcode.ListenerBindFailure, false)
	}

	b.markReady(handles)
	return b.loop(ctx)
}

// subscribe registers signal delivery and starts the service tree. Every
// registration is recorded for the coordinator's final step.
func (b *Bootstrap) subscribe(ctx context.Context) {
	sigs := b.signals
	if sigs == nil {
		ch := make(chan os.Signal, 4)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		b.registry.Add("signals", func() { signal.Stop(ch) })
		sigs = ch
	}
	b.tree.AddControlService(services.NewSignalService(sigs, func(s os.Signal) {
		b.post(event{kind: evSignal, sig: s})
	}))

	if b.channel != nil {
		b.tree.AddControlService(services.NewControlReader("control-reader", b.channel,
			func(m control.Message) { b.post(event{kind: evMessage, msg: m}) },
			func(err error) { b.post(event{kind: evControlError, err: err}) },
		))
	}

	treeCtx, stopTree := context.WithCancel(context.WithoutCancel(ctx))
	treeDone := b.tree.ServeBackground(treeCtx)
	b.registry.Add("service-tree", func() {
		stopTree()
		<-treeDone
		b.tree.LogUnstopped()
	})

	if b.channel != nil {
		b.registry.Add("control-channel", func() { _ = b.channel.Close() })
	}
}

// storageCloser stops the storage health checker before the connection it
// pings is closed. The coordinator closes storage before it disposes the
// service tree.
type storageCloser struct {
	conn       io.Closer
	stopHealth func() error
}

func (c *storageCloser) Close() error {
	if err := c.stopHealth(); err != nil {
		return fmt.Errorf("stop storage health check: %w", errors.Join(err, c.conn.Close()))
	}
	return c.conn.Close()
}

// connectStorage reports whether startup may continue.
func (b *Bootstrap) connectStorage(ctx context.Context) bool {
	timeout := b.cfg.Storage.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := b.store.Connect(cctx)
	if err != nil {
		if b.cfg.Storage.Required {
			b.logger.Error().Err(err).Msg("Storage unavailable")
			return false
		}
		b.logger.Warn().Err(err).Msg("Storage unavailable, continuing in degraded mode")
		b.degraded.Store(true)
		metrics.SetBool(metrics.StorageDegraded, true)
		b.setState(StateDegraded)
		return true
	}

	b.health = storage.NewHealthChecker(b.logger, conn, storage.HealthConfig{
		Interval: b.cfg.Storage.HealthInterval,
	})
	token := b.tree.AddHealthService(b.health)
	closer := &storageCloser{conn: conn, stopHealth: func() error {
		return b.tree.RemoveHealthService(token)
	}}
	if !b.coord.SetStorage(closer) {
		_ = closer.Close()
		return false
	}
	metrics.SetBool(metrics.StorageDegraded, false)
	b.setState(StateConnected)
	return true
}

func (b *Bootstrap) listenerSpec(name string, port int, h http.Handler) listener.Spec {
	lc := &b.cfg.Listeners
	return listener.Spec{
		Name:              name,
		Host:              lc.Host,
		Port:              port,
		MaxRetries:        lc.BindRetries,
		RetryInterval:     lc.BindRetryInterval,
		Handler:           h,
		ReadHeaderTimeout: lc.ReadHeaderTimeout,
	}
}

// startListeners binds the redirect listener, then the secured one.
func (b *Bootstrap) startListeners(ctx context.Context) ([]*listener.ServerHandle, error) {
	var handles []*listener.ServerHandle

	if b.cfg.Listeners.RedirectEnabled {
		spec := b.listenerSpec(RedirectListener, b.cfg.Listeners.RedirectPort, b.tls.redirectHandler(b.securePort))
		h, err := b.manager.StartListening(ctx, spec)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}

	spec := b.listenerSpec(SecureListener, b.cfg.Listeners.SecurePort, b.router())
	spec.TLSConfig = b.tls.config
	h, err := b.manager.StartListening(ctx, spec)
	if err != nil {
		return nil, err
	}
	return append(handles, h), nil
}

// securePort is the port redirects point at: the bound port once the
// secured listener is up, the configured one before.
func (b *Bootstrap) securePort() int {
	for _, h := range b.manager.Handles() {
		if h.Name() == SecureListener {
			if addr, ok := h.Addr().(*net.TCPAddr); ok {
				return addr.Port
			}
		}
	}
	return b.cfg.Listeners.SecurePort
}

// markReady attaches runtime error observers, then announces readiness.
func (b *Bootstrap) markReady(handles []*listener.ServerHandle) {
	for _, h := range handles {
		name := h.Name()
		cancel := h.Observe(func(err error) {
			b.post(event{kind: evListenerError, source: name, err: err})
		})
		b.registry.Add("observer:"+name, cancel)
	}

	b.setState(StateReady)
	metrics.SetBool(metrics.WorkerReady, true)
	close(b.ready)

	if b.channel != nil {
		if err := b.channel.Send(control.Ready{}); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to send ready to supervisor")
		} else {
			metrics.RecordControlMessage("outbound", control.ActionReady)
		}
	}
	b.logger.Info().
		Int("listeners", len(handles)).
		Dur("startup", time.Since(b.startedAt)).
		Msg("Worker ready")
}

func (b *Bootstrap) loop(ctx context.Context) int {
	for {
		select {
		case <-ctx.Done():
			return b.terminate(ctx, "context canceled", exitcode.Clean, true)
		case ev := <-b.events:
			if code, done := b.handle(ctx, ev); done {
				return code
			}
		}
	}
}

func (b *Bootstrap) handle(ctx context.Context, ev event) (int, bool) {
	switch ev.kind {
	case evSignal:
		if ev.sig == syscall.SIGHUP {
			b.requestRestart()
			return b.terminate(ctx, "restart requested", exitcode.RestartRequested, false), true
		}
		return b.terminate(ctx, "signal "+ev.sig.String(), exitcode.Clean, true), true

	case evMessage:
		switch m := ev.msg.(type) {
		case control.Close:
			return b.terminate(ctx, "close requested", m.Code, false), true
		case control.SimulatedCrash:
			if b.debug {
				panic("simulated crash requested by supervisor")
			}
		}
		return b.violation(fmt.Errorf("%w: unexpected %q message", control.ErrProtocolViolation, ev.msg.Action())), true

	case evControlError:
		if errors.Is(ev.err, control.ErrProtocolViolation) {
			return b.violation(ev.err), true
		}
		b.logger.Warn().Err(ev.err).Msg("Control channel closed by supervisor")
		return b.terminate(ctx, "control channel closed", exitcode.Clean, true), true

	case evListenerError:
		b.logger.Error().Err(ev.err).Str("listener", ev.source).Msg("Listener failed at runtime")
		return b.terminate(ctx, "listener runtime failure", exitcode.ListenerRuntimeFailure, false), true

	case evPanic:
		return b.uncaught(ctx, ev.source, ev.err, nil), true
	}
	return 0, false
}

// requestRestart tells the supervisor the coming exit is a requested
// restart, not a crash.
func (b *Bootstrap) requestRestart() {
	if b.channel == nil {
		return
	}
	if err := b.channel.Send(control.RestartNotice{}); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to send restart notice")
		return
	}
	metrics.RecordControlMessage("outbound", control.ActionRestart)
}

// violation exits immediately without teardown: a peer that breaks the
// protocol cannot be trusted to coordinate a graceful stop.
func (b *Bootstrap) violation(err error) int {
	b.logger.Error().Err(err).Msg("Control protocol violation, exiting without teardown")
	metrics.ControlProtocolViolations.Inc()
	b.quitOnce.Do(func() { close(b.quit) })
	b.setState(StateTerminated)
	return exitcode.ProtocolViolation
}

func (b *Bootstrap) uncaught(ctx context.Context, source string, err error, stack []byte) int {
	e := b.logger.Error().Err(err).Str("source", source)
	if stack != nil {
		e = e.Str("stack", string(stack))
	}
	e.Msg("Uncaught panic")
	return b.terminate(ctx, "uncaught panic", exitcode.UncaughtPanic, false)
}

// terminate runs the coordinator and returns code. With mapFailure a
// teardown that recorded failures turns into TeardownFailure.
func (b *Bootstrap) terminate(ctx context.Context, reason string, code int, mapFailure bool) int {
	b.quitOnce.Do(func() { close(b.quit) })
	b.setState(StateShuttingDown)
	metrics.SetBool(metrics.WorkerReady, false)

	res := b.coord.Shutdown(ctx, reason)
	if mapFailure && res.Failed() {
		code = exitcode.TeardownFailure
	}

	b.setState(StateTerminated)
	b.logger.Info().
		Str("reason", reason).
		Int("exit_code", code).
		Str("exit", exitcode.Describe(code)).
		Msg("Worker terminated")
	return code
}
