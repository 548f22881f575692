// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package shutdown tears a worker process down in a fixed order.

The Coordinator stops listeners, then closes storage, then disposes the
subscriptions recorded in a Registry during startup. It is safe to call from
every exit path (signals, panics, listener errors, control messages); the
sequence runs once and every caller receives the same Result.

Usage:

	reg := shutdown.NewRegistry(logger)
	coord := shutdown.NewCoordinator(logger, listenerManager, reg, 10*time.Second)
	coord.SetStorage(conn)

	res := coord.Shutdown(ctx, "signal")
	if res.Failed() {
		return exitcode.TeardownFailure
	}

Failures never escape as errors or panics; they are recorded per step in the
Result and logged.
*/
package shutdown
