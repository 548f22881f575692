// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type innerConfig struct {
	Port     int           `koanf:"port" validate:"min=1,max=65535"`
	Interval time.Duration `koanf:"interval" validate:"positive_duration"`
	Mode     string        `koanf:"mode" validate:"oneof=a b"`
}

type outerConfig struct {
	Inner innerConfig `koanf:"inner"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := outerConfig{Inner: innerConfig{Port: 80, Interval: time.Second, Mode: "a"}}
		if err := ValidateStruct(&cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("reports koanf paths", func(t *testing.T) {
		cfg := outerConfig{Inner: innerConfig{Port: 0, Interval: 0, Mode: "c"}}
		err := ValidateStruct(&cfg)
		if err == nil {
			t.Fatal("expected validation error")
		}

		var ve Errors
		if !errors.As(err, &ve) {
			t.Fatalf("expected Errors, got %T", err)
		}
		if len(ve) != 3 {
			t.Fatalf("expected 3 field errors, got %d: %v", len(ve), ve)
		}

		fields := map[string]string{}
		for _, fe := range ve {
			fields[fe.Field] = fe.Tag
		}
		if fields["inner.port"] != "min" {
			t.Errorf("inner.port: got tag %q", fields["inner.port"])
		}
		if fields["inner.interval"] != "positive_duration" {
			t.Errorf("inner.interval: got tag %q", fields["inner.interval"])
		}
		if fields["inner.mode"] != "oneof" {
			t.Errorf("inner.mode: got tag %q", fields["inner.mode"])
		}
		if !strings.Contains(err.Error(), "inner.mode must be one of: a b") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator must return the same instance")
	}
}
