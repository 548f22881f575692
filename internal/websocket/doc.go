// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package websocket streams supervisor lifecycle events to websocket clients.

The supervisor serves the stream at /events next to /metrics when
supervisor.metrics_addr is set. Each client first receives a snapshot of the
supervisor state, then one lifecycle message per event:

	{"type":"snapshot","data":{"state":"running","worker_id":"...","pid":4242,...}}
	{"type":"lifecycle","data":{"type":"worker_exited","exit_code":70,...}}

Clients may send {"type":"ping"} and receive {"type":"pong"}.

Architecture:

	supervisor loop --Broadcast--> Hub.Serve --send chan--> Client.writePump
	                                                         Client.readPump

The hub runs as a suture service. Broadcast never blocks the supervisor
loop: messages are dropped when the hub queue is full, and a client whose
buffer is full is disconnected. When the hub stops every client receives a
close frame.
*/
package websocket
