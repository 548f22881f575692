// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package services

import (
	"context"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/lifeline/internal/control"
	"github.com/tomtom215/lifeline/internal/metrics"
)

// ControlReader pumps inbound control messages to an event loop.
//
// Every decoded message goes to onMessage. The first receive error (end of
// stream, protocol violation, closed channel) goes to onError and ends the
// service for good: a stream that broke once is not read again.
type ControlReader struct {
	name      string
	ch        control.Channel
	onMessage func(control.Message)
	onError   func(error)
}

// NewControlReader creates a reader for ch.
func NewControlReader(name string, ch control.Channel, onMessage func(control.Message), onError func(error)) *ControlReader {
	return &ControlReader{name: name, ch: ch, onMessage: onMessage, onError: onError}
}

type recvResult struct {
	msg control.Message
	err error
}

// Serve implements suture.Service.
//
// Recv is not cancellable, so it runs in its own goroutine; the pending
// receive is abandoned when ctx ends and unblocks once the owner closes the
// channel.
func (r *ControlReader) Serve(ctx context.Context) error {
	for {
		results := make(chan recvResult, 1)
		go func() {
			msg, err := r.ch.Recv()
			results <- recvResult{msg: msg, err: err}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			if res.err != nil {
				r.onError(res.err)
				return suture.ErrDoNotRestart
			}
			metrics.RecordControlMessage("inbound", res.msg.Action())
			r.onMessage(res.msg)
		}
	}
}

func (r *ControlReader) String() string {
	return r.name
}
