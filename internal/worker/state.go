// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package worker

// State is the worker lifecycle state. Transitions only move forward:
//
//	Starting -> ConnectingStorage -> Connected|Degraded -> StartingListeners
//	  -> Ready -> ShuttingDown -> Terminated
//
// Any state may jump to ShuttingDown or Terminated on failure.
type State int32

const (
	StateStarting State = iota
	StateConnectingStorage
	StateConnected
	StateDegraded
	StateStartingListeners
	StateReady
	StateShuttingDown
	StateTerminated
)

var stateNames = [...]string{
	StateStarting:          "starting",
	StateConnectingStorage: "connecting_storage",
	StateConnected:         "connected",
	StateDegraded:          "degraded",
	StateStartingListeners: "starting_listeners",
	StateReady:             "ready",
	StateShuttingDown:      "shutting_down",
	StateTerminated:        "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
