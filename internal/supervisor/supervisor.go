// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/config"
	"github.com/tomtom215/lifeline/internal/control"
	"github.com/tomtom215/lifeline/internal/exitcode"
	"github.com/tomtom215/lifeline/internal/metrics"
	"github.com/tomtom215/lifeline/internal/supervisor/services"
	"github.com/tomtom215/lifeline/internal/websocket"
)

// Errors reported in logs and events when supervision ends abnormally.
var (
	ErrRestartBudgetExhausted = errors.New("restart budget exhausted")
	ErrNoWorker               = errors.New("no worker running")
)

// drainTimeout bounds how long the exit of a worker waits for its control
// stream to reach end of file, so messages sent right before exiting are
// seen before the exit itself.
const drainTimeout = time.Second

// State is the supervisor lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EventType names a supervisor lifecycle event.
type EventType string

const (
	EventWorkerStarted     EventType = "worker_started"
	EventWorkerReady       EventType = "worker_ready"
	EventRestartNotice     EventType = "restart_notice"
	EventProtocolViolation EventType = "protocol_violation"
	EventWorkerExited      EventType = "worker_exited"
	EventWorkerRestarting  EventType = "worker_restarting"
	EventBudgetExhausted   EventType = "budget_exhausted"
	EventStopping          EventType = "stopping"
	EventStopped           EventType = "stopped"
)

// Event is published on Events for every lifecycle transition.
type Event struct {
	Type         EventType `json:"type"`
	Time         time.Time `json:"time"`
	WorkerID     string    `json:"worker_id,omitempty"`
	Pid          int       `json:"pid,omitempty"`
	ExitCode     int       `json:"exit_code"`
	RestartCount int       `json:"restart_count"`
	Reason       string    `json:"reason,omitempty"`
}

// Snapshot is the supervisor state sent to new event stream clients.
type Snapshot struct {
	State        string    `json:"state"`
	WorkerID     string    `json:"worker_id,omitempty"`
	Pid          int       `json:"pid,omitempty"`
	Running      bool      `json:"running"`
	RestartCount int       `json:"restart_count"`
	LastExitCode int       `json:"last_exit_code"`
	StartedAt    time.Time `json:"started_at"`
	ReadyAt      time.Time `json:"ready_at"`
	MaxStarts    int       `json:"max_starts"`
}

// Options configures a Supervisor. Only Config is required.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Spawner overrides the exec spawner built from Config.Supervisor.
	Spawner Spawner

	// Signals overrides host signal delivery. Nil subscribes to SIGINT and
	// SIGTERM for the duration of Run.
	Signals <-chan os.Signal
}

type loopKind int

const (
	loopSignal loopKind = iota
	loopExit
	loopMessage
	loopControlError
	loopWatch
)

type loopEvent struct {
	kind loopKind
	gen  uint64
	sig  os.Signal
	code int
	msg  control.Message
	err  error
	path string
}

// Supervisor keeps one worker process alive according to a RestartPolicy.
// All decisions are taken on the goroutine calling Run; per-worker
// goroutines and the service tree only post events to it.
type Supervisor struct {
	cfg     *config.Config
	policy  RestartPolicy
	logger  zerolog.Logger
	spawner Spawner
	signals <-chan os.Signal
	tree    *Tree
	hub     *websocket.Hub

	state atomic.Int32

	mu     sync.Mutex
	handle WorkerHandle

	gen      uint64
	stopping bool
	killed   bool

	loopCh   chan loopEvent
	done     chan struct{}
	events   chan Event
	restartC <-chan time.Time
	closeC   <-chan time.Time
	timers   []*time.Timer
}

// New creates a Supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Config == nil {
		return nil, errors.New("supervisor: config is required")
	}
	cfg := opts.Config
	logger := opts.Logger.With().Str("component", "supervisor").Logger()

	spawner := opts.Spawner
	if spawner == nil {
		spawner = &ExecSpawner{
			Command: cfg.Supervisor.WorkerCommand,
			Debug:   cfg.Supervisor.Debug,
			Logger:  logger,
		}
	}

	return &Supervisor{
		cfg:     cfg,
		policy:  PolicyFromConfig(&cfg.Supervisor),
		logger:  logger,
		spawner: spawner,
		signals: opts.Signals,
		tree:    NewTree("lifeline-supervisor", logger, DefaultTreeConfig()),
		loopCh:  make(chan loopEvent, 16),
		done:    make(chan struct{}),
		events:  make(chan Event, 64),
	}, nil
}

// Events delivers lifecycle events. Events are dropped when nobody keeps up.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Worker returns a snapshot of the worker handle.
func (s *Supervisor) Worker() WorkerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Snapshot returns the current state for the event stream.
func (s *Supervisor) Snapshot() Snapshot {
	h := s.Worker()
	return Snapshot{
		State:        s.State().String(),
		WorkerID:     h.ID,
		Pid:          h.Pid,
		Running:      h.Running,
		RestartCount: h.RestartCount,
		LastExitCode: h.LastExitCode,
		StartedAt:    h.StartedAt,
		ReadyAt:      h.ReadyAt,
		MaxStarts:    s.policy.MaxStarts,
	}
}

// Policy returns the restart policy in force.
func (s *Supervisor) Policy() RestartPolicy {
	return s.policy
}

func (s *Supervisor) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("Supervisor state changed")
	}
}

func (s *Supervisor) post(ev loopEvent) {
	select {
	case s.loopCh <- ev:
	case <-s.done:
	}
}

func (s *Supervisor) emit(e Event) {
	e.Time = time.Now()
	s.mu.Lock()
	if e.WorkerID == "" {
		e.WorkerID = s.handle.ID
		e.Pid = s.handle.Pid
	}
	e.RestartCount = s.handle.RestartCount
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(websocket.MessageTypeLifecycle, e)
	}
	select {
	case s.events <- e:
	default:
	}
}

func (s *Supervisor) update(fn func(h *WorkerHandle)) {
	s.mu.Lock()
	fn(&s.handle)
	s.mu.Unlock()
}

// Run supervises workers until supervision ends and returns the process
// exit code:
//
//	Clean                   worker closed with the sentinel, or stopped on interrupt
//	                        (exit 0 or the sentinel once Close was forwarded)
//	RestartBudgetExhausted  crashes used up the restart budget
//	NoWorker                interrupt while no worker was running
//	TeardownFailure         interrupt, but the worker did not close cleanly
func (s *Supervisor) Run(ctx context.Context) int {
	defer close(s.done)
	defer s.stopTimers()

	sigs := s.signals
	if sigs == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigs = ch
	}
	s.startServices(sigs)

	treeCtx, stopTree := context.WithCancel(context.WithoutCancel(ctx))
	treeDone := s.tree.ServeBackground(treeCtx)
	defer func() {
		stopTree()
		<-treeDone
		s.tree.LogUnstopped()
	}()

	s.logger.Info().
		Int("max_starts", s.policy.MaxStarts).
		Dur("min_uptime", s.policy.MinUptime).
		Dur("spin_delay", s.policy.SpinDelay).
		Bool("watch", s.cfg.Watch.Enabled).
		Msg("Supervisor starting")

	s.setState(StateStarting)
	s.spawn(ctx)

	code := s.loop(ctx)

	s.setState(StateStopped)
	s.emit(Event{Type: EventStopped, ExitCode: code})
	s.logger.Info().Int("exit_code", code).Str("exit", exitcode.Describe(code)).Msg("Supervisor stopped")
	return code
}

func (s *Supervisor) startServices(sigs <-chan os.Signal) {
	s.tree.AddControlService(services.NewSignalService(sigs, func(sig os.Signal) {
		s.post(loopEvent{kind: loopSignal, sig: sig})
	}))

	if s.cfg.Watch.Enabled {
		s.tree.AddHealthService(services.NewWatchService(services.WatchConfig{
			Dir:         s.cfg.Watch.Dir,
			Debounce:    s.cfg.Watch.Debounce,
			MinInterval: s.cfg.Watch.MinInterval,
		}, s.logger, func(path string) {
			s.post(loopEvent{kind: loopWatch, path: path})
		}))
	}

	if addr := s.cfg.Supervisor.MetricsAddr; addr != "" {
		s.hub = websocket.NewHub(s.logger, func() any { return s.Snapshot() })
		s.tree.AddAPIService(s.hub)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/events", s.hub)
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.tree.AddAPIService(services.NewHTTPServerService("metrics-server", server, 5*time.Second))
	}
}

func (s *Supervisor) loop(ctx context.Context) int {
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			if code, done := s.interrupt("context canceled"); done {
				return code
			}

		case ev := <-s.loopCh:
			if code, done := s.handleEvent(ctx, ev); done {
				return code
			}

		case <-s.restartC:
			s.restartC = nil
			s.spawn(ctx)

		case <-s.closeC:
			s.closeC = nil
			s.logger.Warn().
				Dur("close_timeout", s.cfg.Supervisor.CloseTimeout).
				Msg("Worker did not exit within close timeout, killing")
			s.kill()
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev loopEvent) (int, bool) {
	switch ev.kind {
	case loopSignal:
		return s.interrupt("signal " + ev.sig.String())

	case loopExit:
		if ev.gen != s.gen {
			return 0, false
		}
		return s.onExit(ctx, ev.code)

	case loopMessage:
		if ev.gen == s.gen {
			s.onMessage(ev.msg)
		}

	case loopControlError:
		if ev.gen != s.gen {
			return 0, false
		}
		if errors.Is(ev.err, control.ErrProtocolViolation) {
			s.violation(ev.err)
		} else {
			s.logger.Debug().Err(ev.err).Msg("Worker control stream ended")
		}

	case loopWatch:
		s.onChange(ev.path)
	}
	return 0, false
}

// spawn starts a new worker. A spawn failure is handled like a worker that
// crashed immediately.
func (s *Supervisor) spawn(ctx context.Context) {
	s.gen++
	gen := s.gen
	id := uuid.NewString()

	s.update(func(h *WorkerHandle) {
		h.ID = id
		h.Pid = 0
		h.Process = nil
		h.Running = false
		h.StartedAt = time.Now()
		h.ReadyAt = time.Time{}
		h.restartNotice = false
		h.forcedRestart = false
		h.violation = false
	})

	proc, err := s.spawner.Spawn(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("worker_id", id).Msg("Failed to start worker")
		go s.post(loopEvent{kind: loopExit, gen: gen, code: -1})
		return
	}

	s.update(func(h *WorkerHandle) {
		h.Pid = proc.Pid()
		h.Process = proc
		h.Running = true
	})
	metrics.WorkerStarts.Inc()
	s.setState(StateRunning)

	readerDone := make(chan struct{})
	reader := services.NewControlReader("worker-control", proc.Channel(),
		func(m control.Message) { s.post(loopEvent{kind: loopMessage, gen: gen, msg: m}) },
		func(err error) { s.post(loopEvent{kind: loopControlError, gen: gen, err: err}) },
	)
	go func() {
		defer close(readerDone)
		_ = reader.Serve(context.Background())
	}()

	go func() {
		code := proc.Wait()
		select {
		case <-readerDone:
		case <-time.After(drainTimeout):
		}
		_ = proc.Channel().Close()
		s.post(loopEvent{kind: loopExit, gen: gen, code: code})
	}()

	s.logger.Info().Str("worker_id", id).Int("pid", proc.Pid()).Msg("Worker started")
	s.emit(Event{Type: EventWorkerStarted})
}

func (s *Supervisor) onMessage(msg control.Message) {
	switch msg.(type) {
	case control.Ready:
		var startup time.Duration
		s.update(func(h *WorkerHandle) {
			h.ReadyAt = time.Now()
			startup = h.ReadyAt.Sub(h.StartedAt)
		})
		s.logger.Info().Dur("startup", startup).Msg("Worker ready")
		s.emit(Event{Type: EventWorkerReady})

	case control.RestartNotice:
		s.update(func(h *WorkerHandle) { h.restartNotice = true })
		s.logger.Info().Msg("Worker requested a restart")
		s.emit(Event{Type: EventRestartNotice})

	default:
		s.violation(fmt.Errorf("%w: unexpected %q message from worker", control.ErrProtocolViolation, msg.Action()))
	}
}

// violation kills a worker that broke the protocol; its exit is then
// treated as a crash.
func (s *Supervisor) violation(err error) {
	s.logger.Error().Err(err).Msg("Worker violated the control protocol, killing it")
	metrics.ControlProtocolViolations.Inc()
	s.update(func(h *WorkerHandle) { h.violation = true })
	s.emit(Event{Type: EventProtocolViolation, Reason: err.Error()})
	s.kill()
}

// onChange handles a watch-mode change.
//
// This path kills the worker outright: its shutdown coordinator does not
// run, listeners are not drained and storage is not closed. Watch mode is a
// development aid and takes the crude route on purpose.
func (s *Supervisor) onChange(path string) {
	h := s.Worker()
	if s.stopping || !h.Running {
		s.logger.Debug().Str("path", path).Msg("Change ignored, no running worker")
		return
	}
	s.logger.Warn().Str("path", path).Msg("Change detected, killing worker for restart")
	s.update(func(h *WorkerHandle) { h.forcedRestart = true })
	s.kill()
}

func (s *Supervisor) kill() {
	h := s.Worker()
	if h.Process == nil || !h.Running {
		return
	}
	s.killed = true
	if err := h.Process.Kill(); err != nil {
		s.logger.Error().Err(err).Int("pid", h.Pid).Msg("Failed to kill worker")
	}
}

// interrupt starts a graceful stop: the worker is asked to close with the
// sentinel code and killed if it outlives the close timeout.
func (s *Supervisor) interrupt(reason string) (int, bool) {
	h := s.Worker()

	if s.stopping {
		s.logger.Warn().Str("reason", reason).Msg("Interrupted again while stopping, killing worker")
		s.kill()
		return 0, false
	}

	if !h.Running {
		s.logger.Error().Err(ErrNoWorker).Str("reason", reason).Msg("Interrupt received with no worker running")
		return exitcode.NoWorker, true
	}

	s.stopping = true
	s.restartC = nil
	s.setState(StateStopping)
	s.emit(Event{Type: EventStopping, Reason: reason})
	s.logger.Info().Str("reason", reason).Msg("Stopping worker")

	if err := h.Process.Channel().Send(control.Close{Code: exitcode.CleanClose}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send close to worker, killing it")
		s.kill()
		return 0, false
	}
	metrics.RecordControlMessage("outbound", control.ActionClose)

	t := time.NewTimer(s.cfg.Supervisor.CloseTimeout)
	s.timers = append(s.timers, t)
	s.closeC = t.C
	return 0, false
}

func (s *Supervisor) onExit(ctx context.Context, code int) (int, bool) {
	var h WorkerHandle
	s.update(func(w *WorkerHandle) {
		w.Running = false
		w.LastExitCode = code
		w.Process = nil
		h = *w
	})
	uptime := time.Since(h.StartedAt)
	killed := s.killed
	s.killed = false

	metrics.RecordWorkerExit(code, uptime)
	s.emit(Event{Type: EventWorkerExited, ExitCode: code})
	s.logger.Info().
		Str("worker_id", h.ID).
		Int("exit_code", code).
		Str("exit", exitcode.Describe(code)).
		Dur("uptime", uptime).
		Msg("Worker exited")

	if s.stopping {
		s.closeC = nil
		if exitcode.ClosedCleanly(code) && !killed {
			return exitcode.Clean, true
		}
		s.logger.Warn().Int("exit_code", code).Msg("Worker did not close cleanly")
		return exitcode.TeardownFailure, true
	}

	d := s.policy.Decide(&h, code, uptime)
	if d.Action == ActionStop {
		if d.ExitCode == exitcode.RestartBudgetExhausted {
			s.logger.Error().
				Err(ErrRestartBudgetExhausted).
				Int("restarts", h.RestartCount).
				Int("max_starts", s.policy.MaxStarts).
				Msg("Worker keeps crashing, giving up")
			s.emit(Event{Type: EventBudgetExhausted, ExitCode: code})
		} else {
			s.logger.Info().Msg("Worker closed intentionally, not restarting")
		}
		return d.ExitCode, true
	}

	if d.Charged {
		var n int
		s.update(func(w *WorkerHandle) {
			w.RestartCount++
			n = w.RestartCount
		})
		s.logger.Warn().Int("exit_code", code).Msgf("restart %d of %d", n, s.policy.MaxRestarts())
	}
	metrics.WorkerRestarts.WithLabelValues(d.Reason).Inc()
	s.setState(StateRestarting)
	s.emit(Event{Type: EventWorkerRestarting, Reason: d.Reason})

	if d.Spinning {
		metrics.WorkerSpins.Inc()
		s.logger.Warn().
			Dur("uptime", uptime).
			Dur("min_uptime", s.policy.MinUptime).
			Dur("delay", d.Delay).
			Msg("Worker is spinning, delaying restart")
		t := time.NewTimer(d.Delay)
		s.timers = append(s.timers, t)
		s.restartC = t.C
		return 0, false
	}

	s.spawn(ctx)
	return 0, false
}

func (s *Supervisor) stopTimers() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
