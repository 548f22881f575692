// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package supervisor

import (
	"time"

	"github.com/tomtom215/lifeline/internal/config"
	"github.com/tomtom215/lifeline/internal/exitcode"
)

// RestartPolicy bounds worker restarts. It is read only by the supervisor.
type RestartPolicy struct {
	// MaxStarts is the total number of starts allowed, so a worker is
	// restarted after a crash at most MaxStarts-1 times.
	MaxStarts int

	// MinUptime is the uptime below which an exit counts as spinning.
	MinUptime time.Duration

	// SpinDelay is waited before restarting a spinning worker.
	SpinDelay time.Duration
}

// PolicyFromConfig builds a RestartPolicy from the supervisor section.
func PolicyFromConfig(cfg *config.SupervisorConfig) RestartPolicy {
	return RestartPolicy{
		MaxStarts: cfg.MaxStarts,
		MinUptime: cfg.MinUptime,
		SpinDelay: cfg.SpinDelay,
	}
}

// MaxRestarts is the number of crash restarts the budget allows.
func (p RestartPolicy) MaxRestarts() int {
	if p.MaxStarts < 1 {
		return 0
	}
	return p.MaxStarts - 1
}

// Spinning reports whether a worker that ran for uptime exited too early.
func (p RestartPolicy) Spinning(uptime time.Duration) bool {
	return p.MinUptime > 0 && uptime < p.MinUptime
}

// WorkerHandle describes the supervised worker. The supervisor keeps one
// handle for its lifetime; Process and ID change on every spawn while
// RestartCount accumulates.
type WorkerHandle struct {
	ID           string
	Pid          int
	Process      Process
	Running      bool
	RestartCount int
	LastExitCode int
	StartedAt    time.Time
	ReadyAt      time.Time

	// Set while the current process runs; cleared on spawn.
	restartNotice bool
	forcedRestart bool
	violation     bool
}

// Action is what the supervisor does after a worker exit.
type Action int

const (
	// ActionStop ends supervision with the decision's exit code.
	ActionStop Action = iota
	// ActionRestart spawns a new worker, after Delay.
	ActionRestart
)

// Decision is the outcome of Decide.
type Decision struct {
	Action   Action
	Reason   string // restart reason: crash, requested, watch
	Charged  bool   // counts against the restart budget
	Spinning bool
	Delay    time.Duration
	ExitCode int // supervisor exit code for ActionStop
}

// Decide classifies a worker exit that happened while the supervisor was
// not stopping. h carries the exit's context (restart notice, forced
// restart, protocol violation) and its RestartCount before this exit.
func (p RestartPolicy) Decide(h *WorkerHandle, code int, uptime time.Duration) Decision {
	switch {
	case code == exitcode.CleanClose && !h.violation:
		return Decision{Action: ActionStop, ExitCode: exitcode.Clean}

	case h.forcedRestart:
		return Decision{Action: ActionRestart, Reason: "watch"}

	case code == exitcode.RestartRequested && h.restartNotice && !h.violation:
		return Decision{Action: ActionRestart, Reason: "requested"}
	}

	if h.RestartCount >= p.MaxRestarts() {
		return Decision{Action: ActionStop, ExitCode: exitcode.RestartBudgetExhausted}
	}

	d := Decision{Action: ActionRestart, Reason: "crash", Charged: true}
	if p.Spinning(uptime) {
		d.Spinning = true
		d.Delay = p.SpinDelay
	}
	return d
}
