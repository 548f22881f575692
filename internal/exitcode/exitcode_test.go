// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package exitcode

import "testing"

func TestCodesAreDistinct(t *testing.T) {
	codes := []int{
		Clean, Usage, StorageUnavailable, UncaughtPanic, ListenerBindFailure,
		TeardownFailure, ListenerRuntimeFailure, RestartBudgetExhausted,
		ProtocolViolation, Config, NoWorker, CleanClose, RestartRequested,
	}
	seen := make(map[int]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("exit code %d is used twice", c)
		}
		seen[c] = true
		if c < 0 || c > 125 {
			t.Errorf("exit code %d outside portable range", c)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{Clean, "clean"},
		{CleanClose, "clean_close"},
		{ListenerBindFailure, "listener_bind_failure"},
		{-1, "signaled"},
		{3, "code_3"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Describe(tt.code); got != tt.want {
				t.Errorf("Describe(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestClosedCleanly(t *testing.T) {
	for _, code := range []int{Clean, CleanClose} {
		if !ClosedCleanly(code) {
			t.Errorf("ClosedCleanly(%d) = false, want true", code)
		}
	}
	for _, code := range []int{RestartRequested, UncaughtPanic, TeardownFailure, 137} {
		if ClosedCleanly(code) {
			t.Errorf("ClosedCleanly(%d) = true, want false", code)
		}
	}
}
