// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Command lifeline runs a web application under supervision.

The same binary has two modes:

	lifeline [-config file] [-debug] supervise   (default)
	lifeline [-config file] [-debug] worker

In supervise mode the process spawns itself in worker mode, passing the
control channel on descriptors 3 and 4, and restarts the worker according to
the restart policy. In worker mode the process connects storage, binds the
redirect and secure listeners, reports ready and serves until told to close.
A worker started without a supervisor runs standalone.

# Configuration

Configuration is loaded via koanf v2 (highest priority wins):
  - Environment variables (MAX_STARTS, HTTPS_PORT, STORAGE_DRIVER, ...)
  - Config file (-config, $CONFIG_PATH, or ./config.yaml)
  - Built-in defaults

# Exit Codes

The exit code tells the supervisor, or an outer process manager, why the
process ended. See package exitcode for the full table; the intentional ones
are 0 (clean), 86 (worker closed on request) and 87 (worker asked to be
restarted).

# Example Usage

Development with watch mode and a throwaway store:

	export WATCH_ENABLED=true
	export STORAGE_DRIVER=badger
	export STORAGE_PATH=/tmp/lifeline
	export TLS_MODE=none
	./lifeline -debug

Production with Let's Encrypt:

	export TLS_MODE=autocert
	export AUTOCERT_HOSTS=example.com
	export HTTP_PORT=80 HTTPS_PORT=443
	./lifeline -config /etc/lifeline/config.yaml
*/
package main
