// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package daemonclient

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// detachProcess starts cmd in its own session so it survives the CLI
// process that spawned it exiting.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
