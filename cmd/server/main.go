// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/config"
	"github.com/tomtom215/lifeline/internal/control"
	"github.com/tomtom215/lifeline/internal/exitcode"
	"github.com/tomtom215/lifeline/internal/logging"
	"github.com/tomtom215/lifeline/internal/supervisor"
	"github.com/tomtom215/lifeline/internal/worker"
)

const (
	modeSupervise = "supervise"
	modeWorker    = "worker"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run parses the command line and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("lifeline", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file (default: $CONFIG_PATH or ./config.yaml)")
	debug := fs.Bool("debug", false, "enable debug behavior such as simulated crashes")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: lifeline [-config file] [-debug] [%s|%s]\n", modeSupervise, modeWorker)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcode.Clean
		}
		return exitcode.Usage
	}

	mode := modeSupervise
	switch fs.NArg() {
	case 0:
	case 1:
		mode = fs.Arg(0)
	default:
		fs.Usage()
		return exitcode.Usage
	}
	if mode != modeSupervise && mode != modeWorker {
		fmt.Fprintf(stderr, "lifeline: unknown mode %q\n", mode)
		fs.Usage()
		return exitcode.Usage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "lifeline: %v\n", err)
		return exitcode.Config
	}
	if *debug {
		cfg.Supervisor.Debug = true
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    stderr,
	})

	if mode == modeWorker {
		return runWorker(cfg, logger)
	}
	return runSupervisor(cfg, *configPath, logger)
}

func runSupervisor(cfg *config.Config, configPath string, logger zerolog.Logger) int {
	spawner := &supervisor.ExecSpawner{
		Command: cfg.Supervisor.WorkerCommand,
		Debug:   cfg.Supervisor.Debug,
		Logger:  logger,
	}
	if configPath != "" {
		// The worker loads the same file.
		spawner.Env = append(spawner.Env, config.ConfigPathEnvVar+"="+configPath)
	}

	sup, err := supervisor.New(supervisor.Options{
		Config:  cfg,
		Logger:  logger,
		Spawner: spawner,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create supervisor")
		return exitcode.Config
	}
	return sup.Run(context.Background())
}

func runWorker(cfg *config.Config, logger zerolog.Logger) int {
	if id := os.Getenv(supervisor.EnvWorkerID); id != "" {
		logger = logger.With().Str("worker_id", id).Logger()
	}

	opts := worker.Options{
		Config: cfg,
		Logger: logger,
		App:    newApp(logger),
	}
	// Inherited returns a nil *Pipe outside a supervisor; keep the
	// interface nil in that case.
	if ch := control.Inherited(); ch != nil {
		opts.Channel = ch
	} else {
		logger.Warn().Msg("No control channel inherited, running standalone")
	}

	b, err := worker.New(opts)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create worker")
		return exitcode.Config
	}
	return b.Run(context.Background())
}
