// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package shutdown

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRegistry_DisposeAll(t *testing.T) {
	t.Run("reverse order, once", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		var order []string
		r.Add("a", func() { order = append(order, "a") })
		r.Add("b", func() { order = append(order, "b") })
		r.Add("c", func() { order = append(order, "c") })

		if r.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", r.Len())
		}
		if err := r.DisposeAll(); err != nil {
			t.Fatalf("DisposeAll() error = %v", err)
		}
		if got := strings.Join(order, ","); got != "c,b,a" {
			t.Errorf("order = %s, want c,b,a", got)
		}
		if err := r.DisposeAll(); err != nil {
			t.Errorf("second DisposeAll() error = %v", err)
		}
		if len(order) != 3 {
			t.Errorf("disposers ran %d times, want 3", len(order))
		}
		if r.Len() != 0 {
			t.Errorf("Len() after dispose = %d", r.Len())
		}
	})

	t.Run("panic is reported and others still run", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		ran := false
		r.Add("ok", func() { ran = true })
		r.Add("bad", func() { panic("boom") })

		err := r.DisposeAll()
		if err == nil || !strings.Contains(err.Error(), "bad") {
			t.Errorf("DisposeAll() error = %v, want mention of bad", err)
		}
		if !ran {
			t.Error("remaining disposer did not run")
		}
	})

	t.Run("add after dispose disposes immediately", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		_ = r.DisposeAll()
		ran := false
		r.Add("late", func() { ran = true })
		if !ran {
			t.Error("late registration was not disposed")
		}
		if r.Len() != 0 {
			t.Errorf("Len() = %d, want 0", r.Len())
		}
	})

	t.Run("late panic is logged", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewRegistry(zerolog.New(&buf))
		_ = r.DisposeAll()
		r.Add("late-bad", func() { panic("boom") })

		logs := buf.String()
		if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, "late-bad") {
			t.Errorf("late dispose panic not logged at warn: %s", logs)
		}
	})
}
