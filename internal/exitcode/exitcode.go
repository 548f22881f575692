// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

// Package exitcode defines the process exit codes shared by the supervisor
// and worker processes.
//
// Values follow the BSD sysexits(3) ranges where a matching category exists.
// Codes above 80 are private to the supervisor/worker pair and carry control
// meaning rather than an error category.
package exitcode

import "strconv"

const (
	// Clean is a normal, signal-initiated exit.
	Clean = 0

	// Usage is returned for invalid command line arguments (EX_USAGE).
	Usage = 64

	// StorageUnavailable is returned when storage is required but the
	// connection could not be established (EX_UNAVAILABLE).
	StorageUnavailable = 69

	// UncaughtPanic is returned after a recovered panic (EX_SOFTWARE).
	UncaughtPanic = 70

	// ListenerBindFailure is returned when a listener could not bind after
	// exhausting its retry budget, or on a non-retryable bind error (EX_OSERR).
	ListenerBindFailure = 71

	// TeardownFailure is returned when a clean exit was requested but one or
	// more teardown steps failed.
	TeardownFailure = 73

	// ListenerRuntimeFailure is returned when a bound listener fails after
	// startup completed (EX_IOERR).
	ListenerRuntimeFailure = 74

	// RestartBudgetExhausted is returned by the supervisor when the worker
	// crashed more often than the restart policy allows (EX_TEMPFAIL).
	RestartBudgetExhausted = 75

	// ProtocolViolation is returned when a control message outside the
	// protocol is received (EX_PROTOCOL).
	ProtocolViolation = 76

	// Config is returned when configuration cannot be loaded or is invalid
	// (EX_CONFIG).
	Config = 78

	// NoWorker is returned by the supervisor when it is asked to stop while no
	// worker is running.
	NoWorker = 79

	// CleanClose is the sentinel a worker exits with after the supervisor
	// asked it to close. The supervisor never restarts on this code.
	CleanClose = 86

	// RestartRequested is returned by a worker that asked its supervisor for a
	// restart. The restart is not charged to the restart budget.
	RestartRequested = 87
)

var descriptions = map[int]string{
	Clean:                  "clean",
	Usage:                  "usage",
	StorageUnavailable:     "storage_unavailable",
	UncaughtPanic:          "uncaught_panic",
	ListenerBindFailure:    "listener_bind_failure",
	TeardownFailure:        "teardown_failure",
	ListenerRuntimeFailure: "listener_runtime_failure",
	RestartBudgetExhausted: "restart_budget_exhausted",
	ProtocolViolation:      "protocol_violation",
	Config:                 "config",
	NoWorker:               "no_worker",
	CleanClose:             "clean_close",
	RestartRequested:       "restart_requested",
}

// Describe returns a short snake_case label for code, suitable for log
// fields and metric labels. Unknown codes are rendered as "code_<n>".
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	if code < 0 {
		return "signaled"
	}
	return "code_" + strconv.Itoa(code)
}

// ClosedCleanly reports whether a worker that was asked to close finished
// its teardown. A worker that caught the interrupt itself exits Clean
// rather than CleanClose.
func ClosedCleanly(code int) bool {
	return code == CleanClose || code == Clean
}
