// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package config

import "time"

// Config holds all application configuration.
// Struct tags:
//   - koanf: configuration key path (used by file and env providers)
//   - validate: go-playground/validator rules applied after loading
type Config struct {
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Watch      WatchConfig      `koanf:"watch"`
	Listeners  ListenersConfig  `koanf:"listeners"`
	Storage    StorageConfig    `koanf:"storage"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// SupervisorConfig controls the restart policy and the worker command line.
type SupervisorConfig struct {
	// MaxStarts is the total number of worker starts allowed before the
	// supervisor gives up; the worker may be restarted MaxStarts-1 times.
	MaxStarts int `koanf:"max_starts" validate:"min=1"`

	// MinUptime is the uptime below which an exit counts as spinning.
	// Zero disables spin detection.
	MinUptime time.Duration `koanf:"min_uptime"`

	// SpinDelay is inserted before restarting a spinning worker.
	SpinDelay time.Duration `koanf:"spin_delay"`

	// CloseTimeout bounds how long the supervisor waits for the worker to
	// exit after sending it a close message before killing it.
	CloseTimeout time.Duration `koanf:"close_timeout" validate:"positive_duration"`

	// Debug passes -debug to the worker and enables simulated crashes.
	Debug bool `koanf:"debug"`

	// WorkerCommand overrides the worker command line. Empty runs this
	// executable with the "worker" argument.
	WorkerCommand []string `koanf:"worker_command"`

	// MetricsAddr, when set, serves /metrics from the supervisor process.
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,hostname_port"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Enabled bool `koanf:"enabled"`

	// Dir is watched recursively for write/create/remove. Directories
	// created later are added as they appear.
	Dir string `koanf:"dir"`

	// Debounce collapses bursts of events into one restart.
	Debounce time.Duration `koanf:"debounce" validate:"positive_duration"`

	// MinInterval is the minimum time between two watch-triggered restarts.
	MinInterval time.Duration `koanf:"min_interval" validate:"positive_duration"`
}

// ListenersConfig describes the redirect and secure listeners.
type ListenersConfig struct {
	Host string `koanf:"host"`

	RedirectEnabled bool `koanf:"redirect_enabled"`
	RedirectPort    int  `koanf:"redirect_port" validate:"min=1,max=65535"`
	SecurePort      int  `koanf:"secure_port" validate:"min=1,max=65535"`

	// BindRetries is the total number of bind attempts on address-in-use.
	BindRetries int `koanf:"bind_retries" validate:"min=1"`

	// BindRetryInterval is the constant delay between bind attempts.
	BindRetryInterval time.Duration `koanf:"bind_retry_interval" validate:"positive_duration"`

	// ShutdownTimeout bounds the drain of in-flight requests. One deadline
	// covers all listeners together.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"positive_duration"`

	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"positive_duration"`

	// RateLimit caps requests per client IP within RateLimitWindow on the
	// secure listener. Zero disables limiting.
	RateLimit       int           `koanf:"rate_limit" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"positive_duration"`

	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string `koanf:"cors_origins"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig selects how the secure listener obtains certificates.
type TLSConfig struct {
	// Mode is one of: none (plain HTTP, development only), files, autocert.
	Mode string `koanf:"mode" validate:"oneof=none files autocert"`

	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	AutocertHosts    []string `koanf:"autocert_hosts"`
	AutocertCacheDir string   `koanf:"autocert_cache_dir"`
	AutocertEmail    string   `koanf:"autocert_email" validate:"omitempty,email"`
}

// StorageConfig selects and tunes the storage driver.
type StorageConfig struct {
	// Driver is one of: duckdb, badger.
	Driver string `koanf:"driver" validate:"oneof=duckdb badger"`
	Path   string `koanf:"path" validate:"required"`

	// Required aborts startup when storage is unreachable. When false the
	// worker continues in degraded mode.
	Required bool `koanf:"required"`

	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"positive_duration"`
	HealthInterval time.Duration `koanf:"health_interval" validate:"positive_duration"`

	// DuckDB tuning.
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
