// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package services

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/lifeline/internal/control"
)

func TestSignalService(t *testing.T) {
	t.Run("relays signals until canceled", func(t *testing.T) {
		sigs := make(chan os.Signal, 2)
		got := make(chan os.Signal, 2)
		svc := NewSignalService(sigs, func(s os.Signal) { got <- s })

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		sigs <- syscall.SIGTERM
		select {
		case s := <-got:
			if s != syscall.SIGTERM {
				t.Errorf("relayed %v, want SIGTERM", s)
			}
		case <-time.After(time.Second):
			t.Fatal("signal not relayed")
		}

		cancel()
		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	})

	t.Run("closed channel stops without restart", func(t *testing.T) {
		sigs := make(chan os.Signal)
		close(sigs)
		svc := NewSignalService(sigs, func(os.Signal) {})
		if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
		}
	})
}

func TestControlReader(t *testing.T) {
	t.Run("delivers messages then the terminal error", func(t *testing.T) {
		local, remote := control.NewPair(4)
		msgs := make(chan control.Message, 4)
		errs := make(chan error, 1)
		r := NewControlReader("control-reader", local, func(m control.Message) { msgs <- m }, func(err error) { errs <- err })

		if r.String() != "control-reader" {
			t.Errorf("String() = %q", r.String())
		}

		done := make(chan error, 1)
		go func() { done <- r.Serve(context.Background()) }()

		if err := remote.Send(control.Close{Code: 86}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		select {
		case m := <-msgs:
			c, ok := m.(control.Close)
			if !ok || c.Code != 86 {
				t.Errorf("got %#v, want Close{86}", m)
			}
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}

		_ = remote.Close()
		select {
		case err := <-errs:
			if !errors.Is(err, io.EOF) && !errors.Is(err, control.ErrClosed) {
				t.Errorf("onError(%v), want EOF or ErrClosed", err)
			}
		case <-time.After(time.Second):
			t.Fatal("terminal error not delivered")
		}
		if err := <-done; !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
		}
	})

	t.Run("returns on cancel while blocked", func(t *testing.T) {
		local, _ := control.NewPair(1)
		r := NewControlReader("reader", local, func(control.Message) {}, func(error) {})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Serve(ctx) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return after cancel")
		}
		_ = local.Close()
	})
}
