// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package daemonserver is the long-running daemon process entry point:
// it accepts IPC connections, dispatches requests to the service
// manager, health monitor, log buffer, and command executor, and drives
// graceful shutdown on SIGTERM/SIGINT or an explicit Shutdown request.
package daemonserver

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aunum/log"
	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/execkit"
	"github.com/adi-family/adi-cli/pkg/healthmonitor"
	"github.com/adi-family/adi-cli/pkg/ipc"
	"github.com/adi-family/adi-cli/pkg/logbuffer"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
	"github.com/adi-family/adi-cli/pkg/pluginlayout"
	"github.com/adi-family/adi-cli/pkg/servicemanager"
	"github.com/adi-family/adi-cli/pkg/wireframe"
)

// Version is the daemon's reported build version, surfaced in Pong
// responses.
var Version = "dev"

// Config parameterizes one Server instance.
type Config struct {
	PluginsRoot   string
	SocketPath    string
	PIDPath       string
	TCPPort       string // if non-empty, bind loopback TCP instead of a unix socket
	AccessLogPath string // structured per-request log; empty disables file output
}

// Server is the daemon process's accept loop and request dispatcher.
type Server struct {
	cfg       Config
	services  *servicemanager.Manager
	logs      *logbuffer.Buffer
	monitor   *healthmonitor.Monitor
	executor  *execkit.Executor
	access    *accessLog
	listener  net.Listener
	startedAt time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New returns a Server for cfg.
func New(cfg Config) *Server {
	logs := logbuffer.New(logbuffer.DefaultCapacity)
	services := servicemanager.New(logs)
	return &Server{
		cfg:        cfg,
		services:   services,
		logs:       logs,
		monitor:    healthmonitor.New(services, healthmonitor.DefaultInterval),
		executor:   execkit.New(),
		access:     newAccessLog(cfg.AccessLogPath),
		shutdownCh: make(chan struct{}),
	}
}

// Run executes the daemon lifecycle: PID file, socket bind, service
// discovery/auto-start, health monitor, signal handling, accept loop,
// and shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := acquirePIDFile(s.cfg.PIDPath); err != nil {
		return err
	}
	defer os.Remove(s.cfg.PIDPath)

	listener, err := bind(s.cfg)
	if err != nil {
		return err
	}
	s.listener = listener
	defer s.cleanupSocket()

	s.startedAt = time.Now()

	if err := s.discoverAndAutoStart(ctx); err != nil {
		log.Errorf("service discovery failed: %v", err)
	}

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go s.monitor.Run(monitorCtx)

	sigCtx, stopSignals := s.signalContext(ctx)
	defer stopSignals()

	return s.acceptLoop(sigCtx)
}

func acquirePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create pid file directory")
	}
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(string(trimNewline(data))); perr == nil && pidAlive(pid) {
			return adierrors.New(adierrors.Conflict, nil, "daemon already running with pid %d", pid)
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func bind(cfg Config) (net.Listener, error) {
	if cfg.TCPPort != "" {
		l, err := net.Listen("tcp", "127.0.0.1:"+cfg.TCPPort)
		if err != nil {
			return nil, adierrors.New(adierrors.Conflict, err, "failed to bind loopback TCP port %s", cfg.TCPPort)
		}
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create socket directory")
	}
	_ = os.Remove(cfg.SocketPath) // clear a stale socket from a prior crashed run

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, adierrors.New(adierrors.Conflict, err, "failed to bind socket %s", cfg.SocketPath)
	}
	if err := os.Chmod(cfg.SocketPath, 0o600); err != nil {
		log.Warningf("failed to chmod socket %s: %v", cfg.SocketPath, err)
	}
	return l, nil
}

func (s *Server) cleanupSocket() {
	_ = s.listener.Close()
	if s.cfg.TCPPort == "" {
		_ = os.Remove(s.cfg.SocketPath)
	}
}

func (s *Server) discoverAndAutoStart(ctx context.Context) error {
	ids, err := pluginlayout.ListInstalledPluginIDs(s.cfg.PluginsRoot, common.CommandIndexDirName)
	if err != nil {
		return err
	}
	for _, id := range ids {
		manifest, loc, err := pluginlayout.LoadManifest(s.cfg.PluginsRoot, id)
		if err != nil || manifest.Daemon == nil {
			continue
		}
		svc := manifest.Daemon.Service
		cfg := servicemanager.Config{
			Name:             svc.Name,
			Command:          svc.Command,
			Env:              s.daemonContextEnv(id, loc.BinaryDir),
			RestartOnFailure: svc.RestartOnFailure,
			MaxRestarts:      svc.MaxRestarts,
		}
		if !svc.AutoStart {
			s.services.RegisterConfig(cfg)
			continue
		}
		if err := s.services.Start(ctx, svc.Name, &cfg); err != nil {
			log.Errorf("failed to auto-start service %q from plugin %q: %v", svc.Name, id, err)
		}
	}
	return nil
}

// daemonContextEnv encodes the DaemonContext a plugin-declared service
// receives in its environment, so a plugin binary spawned as a service
// can dispatch its daemon-service capability.
func (s *Server) daemonContextEnv(pluginID, binaryDir string) []string {
	dCtx := pluginapi.DaemonContext{
		PluginID:   pluginID,
		DataDir:    binaryDir,
		ConfigDir:  common.ConfigDir(),
		SocketPath: s.cfg.SocketPath,
		PIDFile:    s.cfg.PIDPath,
	}
	encoded, err := json.Marshal(dCtx)
	if err != nil {
		return nil
	}
	return []string{common.EnvDaemonContext + "=" + string(encoded)}
}

// signalContext derives a context cancelled by SIGTERM/SIGINT or by an
// explicit Shutdown request, so both paths unwind the accept loop the
// same way.
func (s *Server) signalContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-s.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		cancel()
	}
}

// requestShutdown triggers the same unwind path a termination signal
// takes. Safe to call more than once.
func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

func (s *Server) acceptLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return s.shutdown(context.Background())
			default:
				log.Errorf("accept failed: %v", err)
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) shutdown(ctx context.Context) error {
	log.Infof("daemon shutting down, stopping all services")
	results := s.services.StopAll(ctx)
	for name, err := range results {
		if err != nil {
			log.Errorf("failed to stop service %q during shutdown: %v", name, err)
		}
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var env ipc.RequestEnvelope
	if err := wireframe.Decode(conn, &env); err != nil {
		log.Errorf("failed to decode request frame: %v", err)
		return
	}

	start := time.Now()
	err := s.dispatch(ctx, conn, env)
	s.access.record(int(env.Tag), time.Since(start), err)
	if err != nil {
		log.Errorf("request dispatch failed (tag=%d): %v", env.Tag, err)
	}
}
