// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package daemonserver_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-family/adi-cli/pkg/daemonclient"
	"github.com/adi-family/adi-cli/pkg/daemonserver"
	"github.com/adi-family/adi-cli/pkg/ipc"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
)

type daemonFixture struct {
	client  *daemonclient.Client
	cfg     daemonserver.Config
	runDone chan error
	cancel  context.CancelFunc

	exitOnce sync.Once
	exitErr  error
	exited   bool
}

// waitExit blocks until the daemon's Run has returned, caching the
// result so both a test body and the fixture cleanup can call it.
func (f *daemonFixture) waitExit(t *testing.T) (error, bool) {
	t.Helper()
	f.exitOnce.Do(func() {
		select {
		case f.exitErr = <-f.runDone:
			f.exited = true
		case <-time.After(15 * time.Second):
		}
	})
	return f.exitErr, f.exited
}

func startDaemon(t *testing.T, prepare func(pluginsRoot string)) *daemonFixture {
	t.Helper()
	dir := t.TempDir()
	cfg := daemonserver.Config{
		PluginsRoot: filepath.Join(dir, "plugins"),
		SocketPath:  filepath.Join(dir, "d.sock"),
		PIDPath:     filepath.Join(dir, "d.pid"),
	}
	require.NoError(t, os.MkdirAll(cfg.PluginsRoot, 0o755))
	if prepare != nil {
		prepare(cfg.PluginsRoot)
	}

	srv := daemonserver.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	client := daemonclient.New(daemonclient.Config{
		SocketPath: cfg.SocketPath,
		PIDPath:    cfg.PIDPath,
	})

	deadline := time.Now().Add(5 * time.Second)
	for !client.IsRunning(context.Background()) {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("daemon did not come up")
		}
		time.Sleep(20 * time.Millisecond)
	}

	f := &daemonFixture{client: client, cfg: cfg, runDone: runDone, cancel: cancel}
	t.Cleanup(func() {
		f.cancel()
		if _, exited := f.waitExit(t); !exited {
			t.Error("daemon did not shut down")
		}
	})
	return f
}

func TestPingRoundTrip(t *testing.T) {
	f := startDaemon(t, nil)

	pong, err := f.client.Ping(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pong.UptimeSecs, int64(0))
	assert.Equal(t, daemonserver.Version, pong.Version)
}

func TestServiceLifecycleOverIPC(t *testing.T) {
	f := startDaemon(t, nil)
	ctx := context.Background()

	cfg := &ipc.ServiceConfig{Command: "echo ready; sleep 30"}
	require.NoError(t, f.client.StartService(ctx, "web", cfg))

	// A second start of a running service is rejected.
	assert.Error(t, f.client.StartService(ctx, "web", cfg))

	list, err := f.client.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "web", list[0].Name)
	assert.Equal(t, "running", list[0].State)
	assert.NotZero(t, list[0].PID)

	// Captured output is queryable over the same protocol.
	deadline := time.Now().Add(5 * time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		lines, err = f.client.ServiceLogs(ctx, "web", 10)
		require.NoError(t, err)
		if len(lines) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, "ready", lines[0])

	require.NoError(t, f.client.RestartService(ctx, "web"))
	list, err = f.client.ListServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].Restarts)

	require.NoError(t, f.client.StopService(ctx, "web", false))
	list, err = f.client.ListServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", list[0].State)
}

func TestStreamServiceLogs(t *testing.T) {
	f := startDaemon(t, nil)
	ctx := context.Background()

	require.NoError(t, f.client.StartService(ctx, "chatty", &ipc.ServiceConfig{
		Command: "echo one; echo two; sleep 30",
	}))
	t.Cleanup(func() { _ = f.client.StopService(context.Background(), "chatty", true) })

	streamCtx, cancelStream := context.WithCancel(ctx)
	got := make(chan string, 16)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- f.client.StreamServiceLogs(streamCtx, "chatty", 10, func(line string) {
			got <- line
		})
	}()

	var lines []string
	deadline := time.After(5 * time.Second)
	for len(lines) < 2 {
		select {
		case line := <-got:
			lines = append(lines, line)
		case <-deadline:
			t.Fatal("did not receive streamed lines in time")
		}
	}
	assert.Equal(t, []string{"one", "two"}, lines)

	cancelStream()
	select {
	case err := <-streamDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancel")
	}
}

func TestRunCommandOverIPC(t *testing.T) {
	f := startDaemon(t, nil)

	result, err := f.client.Run(context.Background(), "echo", []string{"from-daemon"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "from-daemon\n", result.Stdout)
}

func TestUnknownServiceOperationsSurfaceErrors(t *testing.T) {
	f := startDaemon(t, nil)
	ctx := context.Background()

	assert.Error(t, f.client.RestartService(ctx, "ghost"))
	// Stopping an unknown service is a no-op by contract.
	assert.NoError(t, f.client.StopService(ctx, "ghost", false))
}

func TestAutoStartDiscoveredPluginService(t *testing.T) {
	f := startDaemon(t, func(pluginsRoot string) {
		versionDir := filepath.Join(pluginsRoot, "adi.svc", "1.0.0")
		require.NoError(t, os.MkdirAll(versionDir, 0o755))
		m := &pluginapi.Manifest{
			Plugin: pluginapi.PluginMeta{ID: "adi.svc", Version: "1.0.0"},
			Daemon: &pluginapi.DaemonDeclaration{Service: pluginapi.ServiceDeclaration{
				Name:      "svc",
				Command:   "sleep 30",
				AutoStart: true,
			}},
		}
		data, err := m.Marshal()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(versionDir, pluginapi.ManifestFileName), data, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(pluginsRoot, "adi.svc", ".version"), []byte("1.0.0"), 0o644))
	})

	list, err := f.client.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "svc", list[0].Name)
	assert.Equal(t, "running", list[0].State)
}

func TestShutdownRequestStopsDaemon(t *testing.T) {
	f := startDaemon(t, nil)
	ctx := context.Background()

	require.NoError(t, f.client.StartService(ctx, "web", &ipc.ServiceConfig{Command: "sleep 30"}))
	require.NoError(t, f.client.Shutdown(ctx, true))

	err, exited := f.waitExit(t)
	require.True(t, exited, "daemon did not exit after shutdown request")
	require.NoError(t, err)

	// Socket and PID file are cleaned up on the way out.
	assert.NoFileExists(t, f.cfg.SocketPath)
	assert.NoFileExists(t, f.cfg.PIDPath)
	assert.False(t, f.client.IsRunning(ctx))
}

func TestSecondDaemonRefusesToStart(t *testing.T) {
	f := startDaemon(t, nil)

	second := daemonserver.New(f.cfg)
	err := second.Run(context.Background())
	assert.Error(t, err)
}

func TestEnsureRunningWithLiveDaemon(t *testing.T) {
	f := startDaemon(t, nil)
	assert.NoError(t, f.client.EnsureRunning(context.Background()))
}

func TestIsRunningWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	client := daemonclient.New(daemonclient.Config{
		SocketPath: filepath.Join(dir, "none.sock"),
		PIDPath:    filepath.Join(dir, "none.pid"),
	})
	assert.False(t, client.IsRunning(context.Background()))
}
