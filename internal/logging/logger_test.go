// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output at configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Level: "warn", Format: "json", Output: &buf})

		logger.Info().Msg("dropped")
		logger.Warn().Msg("kept")

		out := buf.String()
		if strings.Contains(out, "dropped") {
			t.Errorf("info message logged at warn level: %s", out)
		}
		if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "kept") {
			t.Errorf("expected warn message, got: %s", out)
		}
	})

	t.Run("independent instances", func(t *testing.T) {
		var a, b bytes.Buffer
		la := New(Config{Level: "debug", Output: &a})
		lb := New(Config{Level: "error", Output: &b})

		la.Debug().Msg("a")
		lb.Debug().Msg("b")

		if a.Len() == 0 {
			t.Error("debug logger dropped debug message")
		}
		if b.Len() != 0 {
			t.Errorf("error logger emitted debug message: %s", b.String())
		}
	})

	t.Run("console format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Format: "console", Output: &buf})
		logger.Info().Msg("human readable")
		if strings.Contains(buf.String(), `"message"`) {
			t.Errorf("console output looks like JSON: %s", buf.String())
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewTestLogger(&buf), "listener")
	logger.Info().Msg("bound")

	if !strings.Contains(buf.String(), `"component":"listener"`) {
		t.Errorf("expected component field, got: %s", buf.String())
	}
}

func TestCtx(t *testing.T) {
	t.Run("no logger in context", func(t *testing.T) {
		logger := Ctx(context.Background())
		if logger.GetLevel() != zerolog.Disabled {
			t.Errorf("expected disabled logger, got level %v", logger.GetLevel())
		}
	})

	t.Run("logger and request id", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
		ctx = ContextWithRequestID(ctx, "req-1")

		Ctx(ctx).Info().Msg("handled")

		if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
			t.Errorf("expected request id field, got: %s", buf.String())
		}
	})
}
