// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is built lazily and shared; it caches struct
// metadata, so reuse is cheap. Field names in errors use the koanf tag, so
// a failure on Config.Listeners.SecurePort is reported as
// "listeners.secure_port".
//
// Custom tags:
//   - positive_duration: time.Duration > 0
//
// Example usage:
//
//	type ListenersConfig struct {
//	    SecurePort    int           `koanf:"secure_port" validate:"min=1,max=65535"`
//	    RetryInterval time.Duration `koanf:"bind_retry_interval" validate:"positive_duration"`
//	}
//
//	if err := validation.ValidateStruct(cfg); err != nil {
//	    return fmt.Errorf("invalid configuration: %w", err)
//	}
package validation
