// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package services

import (
	"context"
	"os"

	"github.com/thejerf/suture/v4"
)

// SignalService relays host signals to an event loop.
//
// The channel is registered with signal.Notify by the owner, which also
// owns the matching signal.Stop; the service only reads. A restart after a
// handler panic keeps reading the same channel, so no signal is lost.
type SignalService struct {
	sigs   <-chan os.Signal
	handle func(os.Signal)
}

// NewSignalService creates a relay from sigs to handle.
func NewSignalService(sigs <-chan os.Signal, handle func(os.Signal)) *SignalService {
	return &SignalService{sigs: sigs, handle: handle}
}

// Serve implements suture.Service.
func (s *SignalService) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-s.sigs:
			if !ok {
				return suture.ErrDoNotRestart
			}
			s.handle(sig)
		}
	}
}

func (s *SignalService) String() string {
	return "signal-relay"
}
