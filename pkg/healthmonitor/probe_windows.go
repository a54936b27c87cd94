// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package healthmonitor

import "os"

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
