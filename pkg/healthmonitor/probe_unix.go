// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package healthmonitor

import "golang.org/x/sys/unix"

// isAlive probes whether pid names a live process via the signal-0
// convention: sending signal 0 performs error checking without actually
// delivering a signal.
func isAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
