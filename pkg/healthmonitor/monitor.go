// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package healthmonitor runs a fixed-interval background task that
// probes every Running service's PID for liveness and drives bounded
// restarts: a dead service with restart budget left is respawned, one
// without is marked Failed and left alone until an explicit restart.
package healthmonitor

import (
	"context"
	"fmt"
	"time"

	"github.com/aunum/log"

	"github.com/adi-family/adi-cli/pkg/servicemanager"
)

// DefaultInterval is the default probe period.
const DefaultInterval = 5 * time.Second

// UnhealthyRestartThreshold marks a service unhealthy once its restart
// counter reaches this value, independent of its current state.
const UnhealthyRestartThreshold = 2

// Summary aggregates service states for the daemon's status surface.
type Summary struct {
	Total     int
	Running   int
	Stopped   int
	Failed    int
	Unhealthy int
}

// Monitor periodically probes a *servicemanager.Manager for dead
// processes and restarts or fails them per their recorded policy.
type Monitor struct {
	services *servicemanager.Manager
	interval time.Duration
}

// New returns a Monitor ticking at interval (DefaultInterval if <= 0).
func New(services *servicemanager.Manager, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{services: services, interval: interval}
}

// Run blocks, ticking until ctx is cancelled. Intended to be run in its
// own goroutine by the daemon server.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	snapshots := m.services.Snapshot()

	for _, snap := range snapshots {
		if snap.PID == 0 {
			// A Running record always carries the PID recorded at spawn
			// time, so this branch should be unreachable.
			m.services.MarkFailed(snap.Name, "service marked running with no recorded PID")
			continue
		}

		if isAlive(snap.PID) {
			continue
		}

		// Dead. Decide whether to respawn or fail permanently.
		if snap.Config.RestartOnFailure && snap.Restarts < snap.Config.MaxRestarts {
			if err := m.services.RespawnForHealthCheck(ctx, snap.Name); err != nil {
				log.Errorf("health monitor: failed to respawn %q: %v", snap.Name, err)
			}
			continue
		}
		m.services.MarkFailed(snap.Name, "Process died and max restarts exceeded")
	}
}

// Snapshot computes the current aggregate Summary across every known
// service, regardless of state.
func Snapshot(services *servicemanager.Manager) Summary {
	var s Summary
	for _, rec := range services.List() {
		s.Total++
		switch rec.State {
		case servicemanager.StateRunning:
			s.Running++
		case servicemanager.StateStopped:
			s.Stopped++
		case servicemanager.StateFailed:
			s.Failed++
		}
		if rec.State == servicemanager.StateFailed || rec.Restarts >= UnhealthyRestartThreshold {
			s.Unhealthy++
		}
	}
	return s
}

// String renders a one-line summary suitable for log output.
func (s Summary) String() string {
	return fmt.Sprintf("total=%d running=%d stopped=%d failed=%d unhealthy=%d",
		s.Total, s.Running, s.Stopped, s.Failed, s.Unhealthy)
}
