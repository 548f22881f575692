// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package worker runs the supervised worker process.

A Bootstrap connects storage, binds the redirect and secured listeners,
attaches runtime error observers to them and then reports Ready to the
supervisor over the control channel. From then on it waits for one
shutdown trigger and maps it to an exit code:

	SIGINT, SIGTERM                  teardown, exitcode.Clean (TeardownFailure if teardown failed)
	SIGHUP                           RestartNotice, teardown, exitcode.RestartRequested
	Close{Code} from supervisor      teardown, exit with Code
	listener runtime error           teardown, exitcode.ListenerRuntimeFailure
	panic (run loop or any service)  teardown, exitcode.UncaughtPanic
	any other control message        no teardown, exitcode.ProtocolViolation

SimulatedCrash is honored only when supervisor.debug is set; it panics on
the run loop so it exercises the uncaught-panic path.

Startup failures exit with StorageUnavailable (storage required but
unreachable) or ListenerBindFailure. With storage.required false an
unreachable store puts the worker in degraded mode: it serves, and /readyz
reports 503.

Usage:

	opts := worker.Options{Config: cfg, Logger: logger, App: appHandler}
	if ch := control.Inherited(); ch != nil {
	    opts.Channel = ch
	}
	b, err := worker.New(opts)
	if err != nil {
	    os.Exit(exitcode.Config)
	}
	os.Exit(b.Run(context.Background()))
*/
package worker
