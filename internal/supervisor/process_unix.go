// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

//go:build unix

package supervisor

import "syscall"

// sysProcAttr puts the worker in its own process group so a terminal ^C
// reaches only the supervisor, which forwards it as a close message.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
