// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package daemonserver

import (
	"os"
	"os/signal"
)

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// FindProcess opens a real handle on windows; failure means the PID
	// no longer names a live process.
	_, err := os.FindProcess(pid)
	return err == nil
}

func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
