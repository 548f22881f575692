// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/control"
)

// Process is a running worker.
type Process interface {
	Pid() int

	// Channel is the control channel to the worker.
	Channel() control.Channel

	// Wait blocks until the worker exits and returns its exit code. A
	// worker killed by a signal reports 128 + the signal number. Wait is
	// called exactly once.
	Wait() int

	// Kill terminates the worker without giving it a chance to tear down.
	Kill() error
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context, id string) (Process, error)
}

// EnvWorkerID carries the supervisor-assigned worker id into the worker.
const EnvWorkerID = "LIFELINE_WORKER_ID"

// ExecSpawner starts the worker as a child process with the control channel
// on inherited descriptors 3 (supervisor to worker) and 4 (worker to
// supervisor).
type ExecSpawner struct {
	// Command is the worker command line. Empty runs this executable with
	// the "worker" argument.
	Command []string

	// Debug passes -debug to the worker.
	Debug bool

	// Env is appended to the supervisor's environment.
	Env []string

	Stdout io.Writer
	Stderr io.Writer

	Logger zerolog.Logger
}

func (s *ExecSpawner) commandLine() ([]string, error) {
	if len(s.Command) > 0 {
		args := append([]string(nil), s.Command...)
		if s.Debug {
			args = append(args, "-debug")
		}
		return args, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	args := []string{exe}
	if s.Debug {
		// Flags precede the mode argument.
		args = append(args, "-debug")
	}
	return append(args, "worker"), nil
}

// Spawn implements Spawner.
func (s *ExecSpawner) Spawn(ctx context.Context, id string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args, err := s.commandLine()
	if err != nil {
		return nil, err
	}

	toWorkerR, toWorkerW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("control pipe: %w", err)
	}
	fromWorkerR, fromWorkerW, err := os.Pipe()
	if err != nil {
		_ = toWorkerR.Close()
		_ = toWorkerW.Close()
		return nil, fmt.Errorf("control pipe: %w", err)
	}

	// Not CommandContext: cancelling ctx must not kill the worker; the
	// supervisor closes it through the control channel.
	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // command comes from trusted config
	cmd.ExtraFiles = []*os.File{toWorkerR, fromWorkerW}
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env,
		control.EnvControlFDs+"=3,4",
		EnvWorkerID+"="+id,
	)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{toWorkerR, toWorkerW, fromWorkerR, fromWorkerW} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("start worker %q: %w", args[0], err)
	}

	// The child holds its own copies.
	_ = toWorkerR.Close()
	_ = fromWorkerW.Close()

	s.Logger.Debug().
		Strs("args", args).
		Int("pid", cmd.Process.Pid).
		Str("worker_id", id).
		Msg("Worker process started")

	return &execProcess{
		cmd: cmd,
		ch:  control.NewPipe(fromWorkerR, toWorkerW),
	}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	ch  *control.Pipe
}

func (p *execProcess) Pid() int                 { return p.cmd.Process.Pid }
func (p *execProcess) Channel() control.Channel { return p.ch }

// Wait leaves the channel open so the supervisor can drain messages the
// worker wrote before exiting.
func (p *execProcess) Wait() int {
	err := p.cmd.Wait()
	return exitCodeOf(p.cmd.ProcessState, err)
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// exitCodeOf maps a finished process to an exit code, 128+n for a worker
// killed by signal n.
func exitCodeOf(state *os.ProcessState, err error) int {
	if state == nil {
		if err != nil {
			return -1
		}
		return 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
