// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package supervisor

import (
	"testing"
	"time"

	"github.com/tomtom215/lifeline/internal/config"
	"github.com/tomtom215/lifeline/internal/exitcode"
)

func TestRestartPolicy_Decide(t *testing.T) {
	policy := RestartPolicy{MaxStarts: 3, MinUptime: time.Second, SpinDelay: 5 * time.Second}

	tests := []struct {
		name   string
		handle WorkerHandle
		code   int
		uptime time.Duration
		want   Decision
	}{
		{
			name: "clean close stops",
			code: exitcode.CleanClose, uptime: time.Minute,
			want: Decision{Action: ActionStop, ExitCode: exitcode.Clean},
		},
		{
			name:   "clean close after violation is a crash",
			handle: WorkerHandle{violation: true},
			code:   exitcode.CleanClose, uptime: time.Minute,
			want: Decision{Action: ActionRestart, Reason: "crash", Charged: true},
		},
		{
			name:   "requested restart is free",
			handle: WorkerHandle{restartNotice: true, RestartCount: 2},
			code:   exitcode.RestartRequested, uptime: time.Millisecond,
			want: Decision{Action: ActionRestart, Reason: "requested"},
		},
		{
			name: "restart code without notice is a crash",
			code: exitcode.RestartRequested, uptime: time.Minute,
			want: Decision{Action: ActionRestart, Reason: "crash", Charged: true},
		},
		{
			name:   "watch restart is free",
			handle: WorkerHandle{forcedRestart: true, RestartCount: 2},
			code:   137, uptime: time.Millisecond,
			want: Decision{Action: ActionRestart, Reason: "watch"},
		},
		{
			name: "exit zero is a crash",
			code: exitcode.Clean, uptime: time.Minute,
			want: Decision{Action: ActionRestart, Reason: "crash", Charged: true},
		},
		{
			name: "spinning crash is delayed",
			code: exitcode.UncaughtPanic, uptime: 100 * time.Millisecond,
			want: Decision{Action: ActionRestart, Reason: "crash", Charged: true, Spinning: true, Delay: 5 * time.Second},
		},
		{
			name:   "last restart in budget",
			handle: WorkerHandle{RestartCount: 1},
			code:   exitcode.UncaughtPanic, uptime: time.Minute,
			want: Decision{Action: ActionRestart, Reason: "crash", Charged: true},
		},
		{
			name:   "budget exhausted",
			handle: WorkerHandle{RestartCount: 2},
			code:   exitcode.UncaughtPanic, uptime: time.Minute,
			want: Decision{Action: ActionStop, ExitCode: exitcode.RestartBudgetExhausted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.handle
			got := policy.Decide(&h, tt.code, tt.uptime)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRestartPolicy_MaxRestarts(t *testing.T) {
	tests := []struct {
		maxStarts int
		want      int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{10, 9},
	}
	for _, tt := range tests {
		if got := (RestartPolicy{MaxStarts: tt.maxStarts}).MaxRestarts(); got != tt.want {
			t.Errorf("MaxStarts=%d: MaxRestarts() = %d, want %d", tt.maxStarts, got, tt.want)
		}
	}
}

func TestRestartPolicy_SpinningDisabled(t *testing.T) {
	p := RestartPolicy{MaxStarts: 2}
	if p.Spinning(0) {
		t.Error("zero MinUptime must disable spin detection")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(&config.SupervisorConfig{MaxStarts: 4, MinUptime: time.Second, SpinDelay: 2 * time.Second})
	want := RestartPolicy{MaxStarts: 4, MinUptime: time.Second, SpinDelay: 2 * time.Second}
	if p != want {
		t.Errorf("PolicyFromConfig() = %+v, want %+v", p, want)
	}
}
