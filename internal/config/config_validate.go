// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/lifeline/internal/validation"
)

// Validate checks field rules (struct tags) first, then rules that span
// several fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateSupervisor(); err != nil {
		return err
	}

	if err := c.validateWatch(); err != nil {
		return err
	}

	return c.validateListeners()
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.MinUptime < 0 {
		return errors.New("supervisor.min_uptime must not be negative")
	}
	if c.Supervisor.SpinDelay < 0 {
		return errors.New("supervisor.spin_delay must not be negative")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.Enabled && c.Watch.Dir == "" {
		return errors.New("watch.dir is required when watch.enabled is true")
	}
	return nil
}

func (c *Config) validateListeners() error {
	l := c.Listeners

	if l.RedirectEnabled && l.RedirectPort == l.SecurePort {
		return fmt.Errorf("listeners.redirect_port and listeners.secure_port must differ (both %d)", l.SecurePort)
	}

	switch l.TLS.Mode {
	case "files":
		if l.TLS.CertFile == "" || l.TLS.KeyFile == "" {
			return errors.New("listeners.tls.cert_file and listeners.tls.key_file are required when tls.mode is files")
		}
	case "autocert":
		if len(l.TLS.AutocertHosts) == 0 {
			return errors.New("listeners.tls.autocert_hosts is required when tls.mode is autocert")
		}
		if l.TLS.AutocertCacheDir == "" {
			return errors.New("listeners.tls.autocert_cache_dir is required when tls.mode is autocert")
		}
	case "none":
		if l.RedirectEnabled {
			return errors.New("listeners.redirect_enabled requires tls.mode files or autocert")
		}
	}

	return nil
}
