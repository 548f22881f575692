// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

// Package control defines the supervisor/worker control protocol.
//
// Messages form a closed set: Close, Ready, RestartNotice and
// SimulatedCrash. On the wire each message is one JSON object per line:
//
//	{"action":"close","code":86}
//	{"action":"ready"}
//	{"action":"restart"}
//	{"action":"crash"}
//
// Anything else, including a close without a code, decodes to an error
// wrapping ErrProtocolViolation.
//
// Pipe carries messages over a byte stream (the inherited fds 3 and 4 in a
// worker, os.Pipe ends in the supervisor). Local is an in-process pair used
// by tests and by embedding callers.
package control
