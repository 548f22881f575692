// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package supervisor keeps a worker process alive and restarts it within a
budget.

# Overview

A Supervisor spawns one worker at a time through a Spawner. The default
ExecSpawner re-executes the current binary in worker mode with the control
channel on descriptors 3 and 4:

	supervisor                          worker
	    |---- spawn (fd 3 = to worker, fd 4 = from worker) --->|
	    |<--------------------- ready -------------------------|
	    |                        ...                           |
	    |----------------- close (code 86) ------------------->|
	    |<------------------ exit 86 --------------------------|

Every exit is classified by RestartPolicy.Decide:

  - exit 86 (clean close) ends supervision with exit 0
  - exit 87 preceded by a restart notice restarts without charging the budget
  - a watch-mode change kills and restarts without charging the budget
  - anything else is a crash and is restarted while RestartCount < MaxStarts-1

A crash within MinUptime of the start is spinning and the restart waits
SpinDelay. When the budget is used up the supervisor exits 75.

On SIGINT or SIGTERM the supervisor sends close to the worker and waits
CloseTimeout for it to exit with the sentinel, killing it otherwise. A
second interrupt kills immediately. An interrupt with no worker running
exits 79.

# Service Tree

Auxiliary loops run under a suture tree (see Tree) so a crashing helper is
restarted without disturbing the worker:

	RootSupervisor ("lifeline-supervisor")
	├── control-layer
	│   └── signal-relay
	├── health-layer
	│   └── watch (watch mode only)
	└── api-layer (if supervisor.metrics_addr is set)
	    ├── event-hub
	    └── metrics-server (/metrics, /events)

The worker process uses the same Tree type for its own services.

# Event Stream

Events are published on the Events channel and, when the metrics server is
enabled, to websocket clients of /events (see package websocket). New
clients first receive a Snapshot.

# Usage Example

	sup, err := supervisor.New(supervisor.Options{
	    Config: cfg,
	    Logger: logger,
	})
	if err != nil {
	    return exitcode.Config
	}
	os.Exit(sup.Run(ctx))

# Testing

MockService is a suture.Service double for tree tests. Supervisor tests
substitute a Spawner that returns in-process workers built on
control.NewPair.
*/
package supervisor
