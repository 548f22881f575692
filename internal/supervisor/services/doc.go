// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package services provides suture.Service wrappers for the auxiliary
goroutines of the supervisor and worker processes.

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

and only reports what it observes to the owning event loop through a
callback. State transitions stay in the loop.

# Available Services

Signal relay (SignalService):
  - Reads a channel registered with signal.Notify by its owner
  - Hands each signal to the loop

Control reader (ControlReader):
  - Receives control.Message values from a control.Channel
  - Ends for good on the first receive error (EOF, protocol violation)

Directory watcher (WatchService):
  - fsnotify watch of a directory tree, debounced
  - Triggers limited by golang.org/x/time/rate

HTTP server (HTTPServerService):
  - Runs an auxiliary *http.Server (supervisor metrics) with graceful shutdown

# Usage

	tree := supervisor.NewTree("lifeline-supervisor", logger, supervisor.DefaultTreeConfig())
	tree.AddControlService(services.NewSignalService(sigs, loop.onSignal))
	tree.AddControlService(services.NewControlReader("control-reader", ch, loop.onMessage, loop.onControlError))
	tree.AddHealthService(services.NewWatchService(watchCfg, logger, loop.onChange))
*/
package services
