// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package execkit implements the daemon's privilege-separated command
// executor: an unprivileged entry point and a privileged one that shells
// out through a configurable escalation command, surfacing a denial
// rather than blocking on an interactive password prompt.
package execkit

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/adi-family/adi-cli/pkg/adierrors"
)

// DefaultEscalationCommand is the escalation command used when none is
// configured.
const DefaultEscalationCommand = "sudo"

// Result is the outcome of running a command to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs commands on behalf of daemon-side requests. The
// privileged path must only ever be invoked by server code that has
// already authenticated the request source; plugins never issue
// privileged requests directly.
type Executor struct {
	// EscalationCommand is the binary used for privileged execution,
	// invoked as "<EscalationCommand> -n <cmd> <args...>" so that an
	// interactive password prompt fails fast instead of hanging.
	EscalationCommand string
}

// New returns an Executor using DefaultEscalationCommand.
func New() *Executor {
	return &Executor{EscalationCommand: DefaultEscalationCommand}
}

// RunUnprivileged runs cmd with args as the daemon's own user.
func (e *Executor) RunUnprivileged(ctx context.Context, cmd string, args []string) (Result, error) {
	return run(ctx, cmd, args)
}

// RunPrivileged runs cmd with args escalated through EscalationCommand's
// non-interactive flag. reason is carried only for audit logging by the
// caller; it has no effect on execution. A non-zero escalation failure,
// or one that would have required an interactive password prompt,
// surfaces as a SudoDenied-kind error (adierrors.Policy) rather than
// hanging or silently degrading to unprivileged execution.
func (e *Executor) RunPrivileged(ctx context.Context, cmd string, args []string, reason string) (Result, error) {
	escalation := e.EscalationCommand
	if escalation == "" {
		escalation = DefaultEscalationCommand
	}

	fullArgs := append([]string{"-n", cmd}, args...)
	result, err := run(ctx, escalation, fullArgs)
	if err != nil {
		return Result{}, err
	}
	if result.ExitCode != 0 {
		return Result{}, adierrors.New(adierrors.Policy, nil,
			"privileged command %q denied (reason: %s): escalation exited %d: %s",
			cmd, reason, result.ExitCode, result.Stderr)
	}
	return result, nil
}

func run(ctx context.Context, name string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// sudo -n reads from /dev/null implicitly when no terminal is
	// attached; leaving Stdin unset accomplishes the same "never
	// interactive" guarantee without depending on a specific shell.

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if asExitError(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, adierrors.New(adierrors.Transient, err, "failed to run %q", name)
		}
	}

	return Result{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
