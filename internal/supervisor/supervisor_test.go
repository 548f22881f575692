// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/config"
	"github.com/tomtom215/lifeline/internal/control"
	"github.com/tomtom215/lifeline/internal/exitcode"
	"github.com/tomtom215/lifeline/internal/logging"
)

// fakeProcess is an in-process worker. Worker is the worker's end of the
// control channel; the test drives it.
type fakeProcess struct {
	pid    int
	sup    *control.Local
	Worker *control.Local
	exitCh chan int
	once   sync.Once
	killed atomic.Bool
}

func (p *fakeProcess) Pid() int                 { return p.pid }
func (p *fakeProcess) Channel() control.Channel { return p.sup }

func (p *fakeProcess) Wait() int {
	code := <-p.exitCh
	_ = p.Worker.Close()
	return code
}

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(128 + int(syscall.SIGKILL))
	return nil
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() { p.exitCh <- code })
}

// fakeSpawner hands out fakeProcesses and runs script for each one.
type fakeSpawner struct {
	mu       sync.Mutex
	spawned  []*fakeProcess
	failures int
	script   func(n int, p *fakeProcess)
}

func (s *fakeSpawner) Spawn(_ context.Context, _ string) (Process, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("exec: no such file")
	}
	sup, worker := control.NewPair(8)
	p := &fakeProcess{pid: 1000 + len(s.spawned), sup: sup, Worker: worker, exitCh: make(chan int, 1)}
	s.spawned = append(s.spawned, p)
	n := len(s.spawned)
	s.mu.Unlock()

	if s.script != nil {
		go s.script(n, p)
	}
	return p, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

// serveUntilClose plays a well-behaved worker: ready, then exit with the
// code of the first Close message.
func serveUntilClose(p *fakeProcess) {
	_ = p.Worker.Send(control.Ready{})
	for {
		msg, err := p.Worker.Recv()
		if err != nil {
			return
		}
		if c, ok := msg.(control.Close); ok {
			p.exit(c.Code)
			return
		}
	}
}

func testSupervisorConfig(maxStarts int) *config.Config {
	return &config.Config{
		Supervisor: config.SupervisorConfig{
			MaxStarts:    maxStarts,
			CloseTimeout: 2 * time.Second,
		},
	}
}

type supHarness struct {
	sup    *Supervisor
	sigs   chan os.Signal
	logs   *syncBuffer
	codeCh chan int
}

func startSupervisor(t *testing.T, cfg *config.Config, sp Spawner) *supHarness {
	t.Helper()
	h := &supHarness{
		sigs:   make(chan os.Signal, 2),
		logs:   &syncBuffer{},
		codeCh: make(chan int, 1),
	}
	sup, err := New(Options{
		Config:  cfg,
		Logger:  logging.NewTestLogger(h.logs),
		Spawner: sp,
		Signals: h.sigs,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.sup = sup
	go func() { h.codeCh <- sup.Run(context.Background()) }()
	return h
}

func (h *supHarness) exitCode(t *testing.T) int {
	t.Helper()
	select {
	case code := <-h.codeCh:
		return code
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not exit")
		return -1
	}
}

func (h *supHarness) waitEvent(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-h.sup.Events():
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return Event{}
		}
	}
}

func TestSupervisor_RestartBudget(t *testing.T) {
	tests := []struct {
		name      string
		maxStarts int
		wantLogs  []string
	}{
		{"max starts 2", 2, []string{"restart 1 of 1"}},
		{"max starts 3", 3, []string{"restart 1 of 2", "restart 2 of 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpawner{script: func(_ int, p *fakeProcess) { p.exit(exitcode.UncaughtPanic) }}
			h := startSupervisor(t, testSupervisorConfig(tt.maxStarts), sp)

			if code := h.exitCode(t); code != exitcode.RestartBudgetExhausted {
				t.Errorf("exit = %d, want %d", code, exitcode.RestartBudgetExhausted)
			}
			if n := sp.count(); n != tt.maxStarts {
				t.Errorf("spawned %d workers, want %d", n, tt.maxStarts)
			}
			if rc := h.sup.Worker().RestartCount; rc != tt.maxStarts-1 {
				t.Errorf("RestartCount = %d, want %d", rc, tt.maxStarts-1)
			}

			logs := h.logs.String()
			for _, want := range tt.wantLogs {
				if !strings.Contains(logs, want) {
					t.Errorf("logs missing %q", want)
				}
			}
			if strings.Contains(logs, fmt.Sprintf("restart %d of", tt.maxStarts)) {
				t.Error("restarted beyond the budget")
			}
		})
	}
}

func TestSupervisor_CrashesWithinBudget(t *testing.T) {
	const crashes = 2
	sp := &fakeSpawner{script: func(n int, p *fakeProcess) {
		if n <= crashes {
			p.exit(exitcode.ListenerRuntimeFailure)
			return
		}
		serveUntilClose(p)
	}}
	h := startSupervisor(t, testSupervisorConfig(5), sp)

	for {
		e := h.waitEvent(t, EventWorkerReady)
		if e.RestartCount == crashes {
			break
		}
	}
	if n := sp.count(); n != crashes+1 {
		t.Errorf("spawned %d workers, want %d", n, crashes+1)
	}

	h.sigs <- syscall.SIGTERM
	if code := h.exitCode(t); code != exitcode.Clean {
		t.Errorf("exit = %d, want %d", code, exitcode.Clean)
	}
	if w := h.sup.Worker(); w.LastExitCode != exitcode.CleanClose || w.Running {
		t.Errorf("worker = %+v, want stopped with sentinel", w)
	}
}

func TestSupervisor_SentinelStops(t *testing.T) {
	sp := &fakeSpawner{script: func(_ int, p *fakeProcess) {
		_ = p.Worker.Send(control.Ready{})
		p.exit(exitcode.CleanClose)
	}}
	h := startSupervisor(t, testSupervisorConfig(5), sp)

	if code := h.exitCode(t); code != exitcode.Clean {
		t.Errorf("exit = %d, want %d", code, exitcode.Clean)
	}
	if n := sp.count(); n != 1 {
		t.Errorf("spawned %d workers, want 1", n)
	}
	if h.sup.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", h.sup.State())
	}
}

func TestSupervisor_RequestedRestartNotCharged(t *testing.T) {
	sp := &fakeSpawner{script: func(n int, p *fakeProcess) {
		if n == 1 {
			_ = p.Worker.Send(control.Ready{})
			_ = p.Worker.Send(control.RestartNotice{})
			p.exit(exitcode.RestartRequested)
			return
		}
		serveUntilClose(p)
	}}
	h := startSupervisor(t, testSupervisorConfig(1), sp)

	h.waitEvent(t, EventRestartNotice)
	e := h.waitEvent(t, EventWorkerRestarting)
	if e.Reason != "requested" {
		t.Errorf("restart reason = %q, want requested", e.Reason)
	}
	e = h.waitEvent(t, EventWorkerReady)
	if e.RestartCount != 0 {
		t.Errorf("RestartCount = %d, want 0", e.RestartCount)
	}

	h.sigs <- syscall.SIGINT
	if code := h.exitCode(t); code != exitcode.Clean {
		t.Errorf("exit = %d, want %d", code, exitcode.Clean)
	}
}

func TestSupervisor_RestartCodeWithoutNoticeIsCrash(t *testing.T) {
	sp := &fakeSpawner{script: func(_ int, p *fakeProcess) { p.exit(exitcode.RestartRequested) }}
	h := startSupervisor(t, testSupervisorConfig(2), sp)

	if code := h.exitCode(t); code != exitcode.RestartBudgetExhausted {
		t.Errorf("exit = %d, want %d", code, exitcode.RestartBudgetExhausted)
	}
	if n := sp.count(); n != 2 {
		t.Errorf("spawned %d workers, want 2", n)
	}
}

func TestSupervisor_ProtocolViolationKillsWorker(t *testing.T) {
	sp := &fakeSpawner{script: func(n int, p *fakeProcess) {
		if n == 1 {
			// Workers never send close.
			_ = p.Worker.Send(control.Close{Code: 1})
			return
		}
		serveUntilClose(p)
	}}
	h := startSupervisor(t, testSupervisorConfig(3), sp)

	h.waitEvent(t, EventProtocolViolation)
	e := h.waitEvent(t, EventWorkerRestarting)
	if e.Reason != "crash" || e.RestartCount != 1 {
		t.Errorf("restart = %+v, want charged crash", e)
	}
	sp.mu.Lock()
	first := sp.spawned[0]
	sp.mu.Unlock()
	if !first.killed.Load() {
		t.Error("violating worker was not killed")
	}

	h.waitEvent(t, EventWorkerReady)
	h.sigs <- syscall.SIGTERM
	h.exitCode(t)
}

func TestSupervisor_CloseTimeoutKills(t *testing.T) {
	sp := &fakeSpawner{script: func(_ int, p *fakeProcess) {
		// Ready, then ignore every message.
		_ = p.Worker.Send(control.Ready{})
	}}
	cfg := testSupervisorConfig(3)
	cfg.Supervisor.CloseTimeout = 100 * time.Millisecond
	h := startSupervisor(t, cfg, sp)

	h.waitEvent(t, EventWorkerReady)
	start := time.Now()
	h.sigs <- syscall.SIGTERM

	if code := h.exitCode(t); code != exitcode.TeardownFailure {
		t.Errorf("exit = %d, want %d", code, exitcode.TeardownFailure)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("killed after %v, before the close timeout", elapsed)
	}
	sp.mu.Lock()
	p := sp.spawned[0]
	sp.mu.Unlock()
	if !p.killed.Load() {
		t.Error("worker was not killed")
	}
	msg, err := p.Worker.Recv()
	if err != nil {
		t.Fatalf("worker Recv() error = %v", err)
	}
	if c, ok := msg.(control.Close); !ok || c.Code != exitcode.CleanClose {
		t.Errorf("worker received %#v, want Close{%d}", msg, exitcode.CleanClose)
	}
}

func TestSupervisor_InterruptWorkerExitCode(t *testing.T) {
	// The worker ignores the code in Close and exits with its own. Exit 0 is
	// a worker that caught the same interrupt and finished its teardown.
	tests := []struct {
		name       string
		workerExit int
		want       int
	}{
		{"sentinel", exitcode.CleanClose, exitcode.Clean},
		{"own interrupt teardown", exitcode.Clean, exitcode.Clean},
		{"teardown failed", exitcode.TeardownFailure, exitcode.TeardownFailure},
		{"crashed while closing", exitcode.UncaughtPanic, exitcode.TeardownFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpawner{script: func(_ int, p *fakeProcess) {
				_ = p.Worker.Send(control.Ready{})
				for {
					msg, err := p.Worker.Recv()
					if err != nil {
						return
					}
					if _, ok := msg.(control.Close); ok {
						p.exit(tt.workerExit)
						return
					}
				}
			}}
			h := startSupervisor(t, testSupervisorConfig(3), sp)

			h.waitEvent(t, EventWorkerReady)
			h.sigs <- syscall.SIGINT

			if code := h.exitCode(t); code != tt.want {
				t.Errorf("exit = %d, want %d", code, tt.want)
			}
			if n := sp.count(); n != 1 {
				t.Errorf("spawned %d workers, want 1", n)
			}
			if got := strings.Contains(h.logs.String(), "did not close cleanly"); got != (tt.want != exitcode.Clean) {
				t.Errorf("teardown warning logged = %v, want %v", got, tt.want != exitcode.Clean)
			}
		})
	}
}

func TestSupervisor_InterruptWithoutWorker(t *testing.T) {
	sp := &fakeSpawner{failures: 100}
	cfg := testSupervisorConfig(5)
	cfg.Supervisor.MinUptime = time.Hour
	cfg.Supervisor.SpinDelay = time.Hour
	h := startSupervisor(t, cfg, sp)

	h.waitEvent(t, EventWorkerRestarting)
	h.sigs <- syscall.SIGINT

	select {
	case code := <-h.codeCh:
		if code != exitcode.NoWorker {
			t.Errorf("exit = %d, want %d", code, exitcode.NoWorker)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor hung on interrupt without a worker")
	}
}

func TestSupervisor_SpinDelay(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	sp := &fakeSpawner{script: func(n int, p *fakeProcess) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		if n == 1 {
			p.exit(exitcode.UncaughtPanic)
			return
		}
		serveUntilClose(p)
	}}
	cfg := testSupervisorConfig(3)
	cfg.Supervisor.MinUptime = time.Hour
	cfg.Supervisor.SpinDelay = 200 * time.Millisecond
	h := startSupervisor(t, cfg, sp)

	h.waitEvent(t, EventWorkerReady)

	mu.Lock()
	if len(starts) != 2 {
		t.Fatalf("starts = %d, want 2", len(starts))
	}
	gap := starts[1].Sub(starts[0])
	mu.Unlock()
	if gap < 200*time.Millisecond {
		t.Errorf("restart after %v, want at least the spin delay", gap)
	}

	h.sigs <- syscall.SIGTERM
	h.exitCode(t)
}

func TestSupervisor_WatchForcesRestart(t *testing.T) {
	dir := t.TempDir()
	sp := &fakeSpawner{script: func(_ int, p *fakeProcess) { serveUntilClose(p) }}
	cfg := testSupervisorConfig(1)
	cfg.Watch = config.WatchConfig{
		Enabled:     true,
		Dir:         dir,
		Debounce:    20 * time.Millisecond,
		MinInterval: 10 * time.Millisecond,
	}
	h := startSupervisor(t, cfg, sp)
	h.waitEvent(t, EventWorkerReady)

	// Let the watcher register the directory.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := h.waitEvent(t, EventWorkerRestarting)
	if e.Reason != "watch" {
		t.Errorf("restart reason = %q, want watch", e.Reason)
	}
	e = h.waitEvent(t, EventWorkerReady)
	if e.RestartCount != 0 {
		t.Errorf("RestartCount = %d, watch restarts must not be charged", e.RestartCount)
	}

	h.sigs <- syscall.SIGTERM
	if code := h.exitCode(t); code != exitcode.Clean {
		t.Errorf("exit = %d, want %d", code, exitcode.Clean)
	}
}

func TestSupervisor_ContextCancelStops(t *testing.T) {
	sp := &fakeSpawner{script: func(_ int, p *fakeProcess) { serveUntilClose(p) }}
	sup, err := New(Options{
		Config:  testSupervisorConfig(2),
		Logger:  zerolog.Nop(),
		Spawner: sp,
		Signals: make(chan os.Signal),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	codeCh := make(chan int, 1)
	go func() { codeCh <- sup.Run(ctx) }()

	timeout := time.After(5 * time.Second)
	for ready := false; !ready; {
		select {
		case e := <-sup.Events():
			ready = e.Type == EventWorkerReady
		case <-timeout:
			t.Fatal("worker never ready")
		}
	}
	cancel()

	select {
	case code := <-codeCh:
		if code != exitcode.Clean {
			t.Errorf("exit = %d, want %d", code, exitcode.Clean)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on context cancel")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestSupervisor_EventStream(t *testing.T) {
	sp := &fakeSpawner{script: func(_ int, p *fakeProcess) { serveUntilClose(p) }}
	cfg := testSupervisorConfig(2)
	cfg.Supervisor.MetricsAddr = freeAddr(t)
	h := startSupervisor(t, cfg, sp)
	h.waitEvent(t, EventWorkerReady)

	var conn *websocket.Conn
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+cfg.Supervisor.MetricsAddr+"/events", nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Dial() error = %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer conn.Close()

	type frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	read := func() frame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return f
	}

	first := read()
	var snap Snapshot
	if err := json.Unmarshal(first.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if first.Type != "snapshot" || snap.State != "running" || !snap.Running || snap.MaxStarts != 2 {
		t.Errorf("snapshot = %s %+v", first.Type, snap)
	}

	h.sigs <- syscall.SIGTERM
	seen := map[EventType]bool{}
	for !seen[EventStopping] {
		f := read()
		var e Event
		if err := json.Unmarshal(f.Data, &e); err != nil {
			t.Fatal(err)
		}
		seen[e.Type] = true
	}
	if code := h.exitCode(t); code != exitcode.Clean {
		t.Errorf("exit = %d, want %d", code, exitcode.Clean)
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without config")
	}
}
