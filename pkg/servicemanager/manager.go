// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package servicemanager

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/jesseduffield/kill"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/logbuffer"
)

type record struct {
	name      string
	config    Config
	state     State
	pid       int
	startedAt time.Time
	restarts  int
	lastError string

	cmd  *exec.Cmd
	done chan struct{} // closed once the child process has been reaped
}

// Manager owns the set of managed services and their lifecycle.
type Manager struct {
	mu       sync.RWMutex
	services map[string]*record
	logs     *logbuffer.Buffer
}

// New returns a Manager that captures child output into logs.
func New(logs *logbuffer.Buffer) *Manager {
	return &Manager{services: make(map[string]*record), logs: logs}
}

// Start spawns name's child process and transitions it to Running, or
// to Failed on a spawn error. If cfg is nil, the previously recorded
// configuration for name is reused (the shape Restart needs).
func (m *Manager) Start(ctx context.Context, name string, cfg *Config) error {
	m.mu.Lock()
	rec, exists := m.services[name]
	if exists && rec.state == StateRunning {
		m.mu.Unlock()
		return adierrors.New(adierrors.AlreadyExists, nil, "service %q is already running", name)
	}
	if !exists {
		if cfg == nil {
			m.mu.Unlock()
			return adierrors.New(adierrors.NotFound, nil, "service %q has no recorded configuration", name)
		}
		rec = &record{name: name, config: *cfg}
		m.services[name] = rec
	} else if cfg != nil {
		rec.config = *cfg
	}
	rec.state = StateStarting
	activeCfg := rec.config
	m.mu.Unlock()

	// Spawn outside the lock; never block on process creation while
	// holding it.
	cmd, done, spawnErr := spawn(ctx, name, activeCfg, m.logs)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-read after the blocking spawn. Concurrent Starts for the same
	// name are serialized through the daemon's accept loop, but defend
	// against a concurrent Stop having removed the record.
	rec = m.services[name]
	if rec == nil {
		return adierrors.New(adierrors.Programmer, nil, "service %q vanished during start", name)
	}
	if spawnErr != nil {
		rec.state = StateFailed
		rec.lastError = spawnErr.Error()
		return adierrors.New(adierrors.Transient, spawnErr, "failed to spawn service %q", name)
	}
	rec.cmd = cmd
	rec.done = done
	rec.pid = cmd.Process.Pid
	rec.startedAt = time.Now()
	rec.state = StateRunning
	return nil
}

func spawn(ctx context.Context, name string, cfg Config, logs *logbuffer.Buffer) (*exec.Cmd, chan struct{}, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command) //nolint:gosec
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	kill.PrepareForChildren(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go captureLines(&wg, logs, name, stdout)
	go captureLines(&wg, logs, name, stderr)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		_ = cmd.Wait()
		close(done)
	}()

	return cmd, done, nil
}

func captureLines(wg *sync.WaitGroup, logs *logbuffer.Buffer, service string, r interface{ Read([]byte) (int, error) }) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logs.Push(service, scanner.Text())
	}
}

// Stop is a no-op if name is already stopped. With force it kills
// immediately; otherwise it sends SIGTERM and waits up to
// GracefulStopTimeout before escalating to a kill.
func (m *Manager) Stop(ctx context.Context, name string, force bool) error {
	m.mu.Lock()
	rec, exists := m.services[name]
	if !exists || rec.state == StateStopped {
		m.mu.Unlock()
		return nil
	}
	cmd, done := rec.cmd, rec.done
	rec.state = StateStopping
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		m.mu.Lock()
		rec.state = StateStopped
		m.mu.Unlock()
		return nil
	}

	if force {
		_ = kill.Kill(cmd)
	} else {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = kill.Kill(cmd)
		} else {
			select {
			case <-done:
			case <-time.After(GracefulStopTimeout):
				_ = kill.Kill(cmd)
			case <-ctx.Done():
				_ = kill.Kill(cmd)
			}
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	m.mu.Lock()
	rec.state = StateStopped
	rec.lastError = ""
	m.mu.Unlock()
	return nil
}

// Restart increments the restart counter, stops (gracefully), then
// starts the service again with its recorded configuration.
func (m *Manager) Restart(ctx context.Context, name string) error {
	m.mu.Lock()
	rec, exists := m.services[name]
	if !exists {
		m.mu.Unlock()
		return adierrors.New(adierrors.NotFound, nil, "service %q is not known", name)
	}
	rec.restarts++
	m.mu.Unlock()

	if err := m.Stop(ctx, name, false); err != nil {
		return err
	}
	return m.Start(ctx, name, nil)
}

// StopAll best-effort stops every known service in parallel; per-service
// failures are collected but never abort the others.
func (m *Manager) StopAll(ctx context.Context) map[string]error {
	m.mu.RLock()
	names := make([]string, 0, len(m.services))
	for n := range m.services {
		names = append(names, n)
	}
	m.mu.RUnlock()

	results := make(map[string]error, len(names))
	var mu sync.Mutex
	var g errgroup.Group
	for _, n := range names {
		n := n
		g.Go(func() error {
			err := m.Stop(ctx, n, false)
			mu.Lock()
			results[n] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Snapshot copies state for every service currently in Running state,
// taken under a read lock so each copy is consistent as of one instant.
func (m *Manager) Snapshot() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.services))
	for _, rec := range m.services {
		if rec.state == StateRunning {
			out = append(out, toSnapshot(rec))
		}
	}
	return out
}

// List returns a snapshot of every known service regardless of state, for
// the ListServices response.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.services))
	for _, rec := range m.services {
		out = append(out, toSnapshot(rec))
	}
	return out
}

// Get returns a single service's snapshot.
func (m *Manager) Get(name string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.services[name]
	if !ok {
		return Snapshot{}, false
	}
	return toSnapshot(rec), true
}

func toSnapshot(rec *record) Snapshot {
	return Snapshot{
		Name:      rec.name,
		Config:    rec.config,
		State:     rec.state,
		PID:       rec.pid,
		StartedAt: rec.startedAt,
		Restarts:  rec.restarts,
		LastError: rec.lastError,
	}
}

// MarkFailed transitions a service straight to Failed with the given
// reason, used by the health monitor when a dead process has exhausted
// its restart budget. A Failed service is never retried automatically;
// it takes an explicit Restart to leave Failed.
func (m *Manager) MarkFailed(name, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.services[name]
	if !ok {
		return
	}
	rec.state = StateFailed
	rec.lastError = reason
}

// RespawnForHealthCheck increments the restart counter and respawns name
// with its recorded configuration, used only by the health monitor after
// it has decided a dead process should be restarted. On a respawn
// failure the service is marked Failed, never left in Starting.
func (m *Manager) RespawnForHealthCheck(ctx context.Context, name string) error {
	m.mu.Lock()
	rec, ok := m.services[name]
	if !ok {
		m.mu.Unlock()
		return adierrors.New(adierrors.NotFound, nil, "service %q is not known", name)
	}
	rec.restarts++
	rec.state = StateStarting
	m.mu.Unlock()

	if err := m.Start(ctx, name, nil); err != nil {
		m.MarkFailed(name, err.Error())
		return err
	}
	return nil
}

// RegisterConfig seeds a service's recorded configuration without
// starting it, used when the Daemon Server discovers auto_start=false
// plugin services at startup so RestartService/StartService later have a
// config to spawn from.
func (m *Manager) RegisterConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[cfg.Name]; !exists {
		m.services[cfg.Name] = &record{name: cfg.Name, config: cfg, state: StateStopped}
	}
}
