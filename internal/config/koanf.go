// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"lifeline.yaml",
	"lifeline.yml",
	"/etc/lifeline/config.yaml",
	"/etc/lifeline/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			MaxStarts:     5,
			MinUptime:     1 * time.Second,
			SpinDelay:     1 * time.Second,
			CloseTimeout:  15 * time.Second,
			Debug:         false,
			WorkerCommand: []string{},
			MetricsAddr:   "",
		},
		Watch: WatchConfig{
			Enabled:     false,
			Dir:         ".",
			Debounce:    500 * time.Millisecond,
			MinInterval: 2 * time.Second,
		},
		Listeners: ListenersConfig{
			Host:              "0.0.0.0",
			RedirectEnabled:   false,
			RedirectPort:      8080,
			SecurePort:        8443,
			BindRetries:       5,
			BindRetryInterval: 2 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			RateLimit:         0,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{},
			TLS: TLSConfig{
				Mode:             "none",
				AutocertHosts:    []string{},
				AutocertCacheDir: "/data/autocert",
			},
		},
		Storage: StorageConfig{
			Driver:         "duckdb",
			Path:           "/data/lifeline.duckdb",
			Required:       true,
			ConnectTimeout: 10 * time.Second,
			HealthInterval: 15 * time.Second,
			MaxMemory:      "1GB",
			Threads:        0, // 0 = use runtime.NumCPU()
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from three layers:
//
//  1. struct defaults
//  2. a YAML file: path if non-empty, else CONFIG_PATH, else DefaultConfigPaths
//  3. environment variables (highest priority, see envTransformFunc)
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless given explicitly)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are split on commas when they arrive as a string (env).
var sliceConfigPaths = []string{
	"supervisor.worker_command",
	"listeners.tls.autocert_hosts",
	"listeners.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot leak
// into configuration.
var envMappings = map[string]string{
	// Supervisor
	"max_starts":              "supervisor.max_starts",
	"min_uptime":              "supervisor.min_uptime",
	"spin_delay":              "supervisor.spin_delay",
	"close_timeout":           "supervisor.close_timeout",
	"debug":                   "supervisor.debug",
	"worker_command":          "supervisor.worker_command",
	"supervisor_metrics_addr": "supervisor.metrics_addr",

	// Watch mode
	"watch_enabled":      "watch.enabled",
	"watch_dir":          "watch.dir",
	"watch_debounce":     "watch.debounce",
	"watch_min_interval": "watch.min_interval",

	// Listeners
	"http_host":             "listeners.host",
	"http_redirect":         "listeners.redirect_enabled",
	"http_port":             "listeners.redirect_port",
	"https_port":            "listeners.secure_port",
	"bind_retries":          "listeners.bind_retries",
	"bind_retry_interval":   "listeners.bind_retry_interval",
	"http_shutdown_timeout": "listeners.shutdown_timeout",
	"rate_limit":            "listeners.rate_limit",
	"rate_limit_window":     "listeners.rate_limit_window",
	"cors_origins":          "listeners.cors_origins",
	"tls_mode":              "listeners.tls.mode",
	"tls_cert_file":         "listeners.tls.cert_file",
	"tls_key_file":          "listeners.tls.key_file",
	"autocert_hosts":        "listeners.tls.autocert_hosts",
	"autocert_cache_dir":    "listeners.tls.autocert_cache_dir",
	"autocert_email":        "listeners.tls.autocert_email",

	// Storage
	"storage_driver":          "storage.driver",
	"storage_path":            "storage.path",
	"storage_required":        "storage.required",
	"storage_connect_timeout": "storage.connect_timeout",
	"storage_health_interval": "storage.health_interval",
	"duckdb_max_memory":       "storage.max_memory",
	"duckdb_threads":          "storage.threads",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
