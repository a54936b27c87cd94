// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	ctxOnce sync.Once
	rootCtx context.Context
)

// cmdContext returns the context every subcommand's operation runs
// under: cancelled on SIGINT/SIGTERM so an interrupted install or
// daemon call unwinds instead of leaving half-finished work behind.
func cmdContext() context.Context {
	ctxOnce.Do(func() {
		rootCtx, _ = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	})
	return rootCtx
}
