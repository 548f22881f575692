// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package config loads Lifeline configuration with koanf v2.

Configuration is layered, later layers overriding earlier ones:

 1. Struct defaults (defaultConfig)
 2. YAML file: the -config flag, CONFIG_PATH, or the first of DefaultConfigPaths
 3. Environment variables, through an explicit mapping table

Both the supervisor and the worker process load the same configuration; the
supervisor passes its environment (and the config path) to the worker, so
the two always agree.

# Example File

	supervisor:
	  max_starts: 5
	  min_uptime: 1s
	  spin_delay: 1s
	listeners:
	  redirect_enabled: true
	  redirect_port: 80
	  secure_port: 443
	  tls:
	    mode: autocert
	    autocert_hosts: [app.example.com]
	storage:
	  driver: duckdb
	  path: /data/app.duckdb
	  required: false

# Environment Variables

Supervisor: MAX_STARTS, MIN_UPTIME, SPIN_DELAY, CLOSE_TIMEOUT, DEBUG,
WORKER_COMMAND, SUPERVISOR_METRICS_ADDR

Watch mode: WATCH_ENABLED, WATCH_DIR, WATCH_DEBOUNCE, WATCH_MIN_INTERVAL

Listeners: HTTP_HOST, HTTP_REDIRECT, HTTP_PORT, HTTPS_PORT, BIND_RETRIES,
BIND_RETRY_INTERVAL, HTTP_SHUTDOWN_TIMEOUT, RATE_LIMIT, RATE_LIMIT_WINDOW,
CORS_ORIGINS, TLS_MODE, TLS_CERT_FILE, TLS_KEY_FILE, AUTOCERT_HOSTS,
AUTOCERT_CACHE_DIR, AUTOCERT_EMAIL

Storage: STORAGE_DRIVER, STORAGE_PATH, STORAGE_REQUIRED,
STORAGE_CONNECT_TIMEOUT, STORAGE_HEALTH_INTERVAL, DUCKDB_MAX_MEMORY,
DUCKDB_THREADS

Logging: LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Slice values (WORKER_COMMAND, AUTOCERT_HOSTS) are comma separated.
*/
package config
