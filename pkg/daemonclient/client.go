// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package daemonclient is the mirror image of the daemon server's wire
// protocol, used by the CLI frontend to talk to a running daemon and to
// spawn one on demand. Connections are short-lived: every operation
// opens a fresh one, frames one request, and awaits its response.
package daemonclient

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/ipc"
	"github.com/adi-family/adi-cli/pkg/wireframe"
)

// PingTimeout bounds IsRunning's liveness probe.
const PingTimeout = time.Second

// EnsureRunningTimeout bounds how long EnsureRunning waits for a freshly
// spawned daemon's socket to appear.
const EnsureRunningTimeout = 5 * time.Second

// Config parameterizes one Client.
type Config struct {
	SocketPath string
	PIDPath    string
	TCPPort    string // if non-empty, dial loopback TCP instead of the unix socket
	DaemonBin  string // path to the adi binary invoked as "<DaemonBin> daemon run"
}

// Client is a thin, stateless dialer: every operation opens a fresh
// connection, frames one request, and awaits exactly one response.
type Client struct {
	cfg Config
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// IsRunning reports whether the PID file names a live process and the
// socket answers a Ping within PingTimeout.
func (c *Client) IsRunning(ctx context.Context) bool {
	pid, err := c.readPID()
	if err != nil || !processAlive(pid) {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	_, err = c.call(pingCtx, ipc.ReqPing, ipc.PingRequest{}, ipc.RespPong, &ipc.PongResponse{})
	return err == nil
}

// EnsureRunning spawns "<DaemonBin> daemon run" as a detached child if no
// daemon is currently running, then polls IsRunning until the socket
// responds or EnsureRunningTimeout elapses.
func (c *Client) EnsureRunning(ctx context.Context) error {
	if c.IsRunning(ctx) {
		return nil
	}

	cmd := exec.Command(c.cfg.DaemonBin, "daemon", "run") //nolint:gosec
	cmd.Stdout = nil
	cmd.Stderr = nil
	detachProcess(cmd)
	if err := cmd.Start(); err != nil {
		return adierrors.New(adierrors.Transient, err, "failed to spawn daemon process")
	}
	// Release the child: the daemon outlives this CLI invocation, so the
	// spawning process must not wait on it.
	go func() { _ = cmd.Process.Release() }()

	deadline := time.Now().Add(EnsureRunningTimeout)
	for time.Now().Before(deadline) {
		if c.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return adierrors.New(adierrors.Unavailable, nil, "daemon did not become ready within %s", EnsureRunningTimeout)
}

// Ping returns the daemon's uptime and reported version.
func (c *Client) Ping(ctx context.Context) (ipc.PongResponse, error) {
	var resp ipc.PongResponse
	_, err := c.call(ctx, ipc.ReqPing, ipc.PingRequest{}, ipc.RespPong, &resp)
	return resp, err
}

// Shutdown asks the daemon to stop all services and exit.
func (c *Client) Shutdown(ctx context.Context, graceful bool) error {
	_, err := c.call(ctx, ipc.ReqShutdown, ipc.ShutdownRequest{Graceful: graceful}, ipc.RespOk, &ipc.OkResponse{})
	return err
}

// StartService asks the daemon to start name, optionally with cfg as its
// configuration (nil reuses a previously recorded one).
func (c *Client) StartService(ctx context.Context, name string, cfg *ipc.ServiceConfig) error {
	_, err := c.call(ctx, ipc.ReqStartService, ipc.StartServiceRequest{Name: name, Config: cfg}, ipc.RespOk, &ipc.OkResponse{})
	return err
}

// StopService asks the daemon to stop name.
func (c *Client) StopService(ctx context.Context, name string, force bool) error {
	_, err := c.call(ctx, ipc.ReqStopService, ipc.StopServiceRequest{Name: name, Force: force}, ipc.RespOk, &ipc.OkResponse{})
	return err
}

// RestartService asks the daemon to restart name.
func (c *Client) RestartService(ctx context.Context, name string) error {
	_, err := c.call(ctx, ipc.ReqRestartService, ipc.RestartServiceRequest{Name: name}, ipc.RespOk, &ipc.OkResponse{})
	return err
}

// ListServices returns every service the daemon currently knows about.
func (c *Client) ListServices(ctx context.Context) ([]ipc.ServiceInfo, error) {
	var resp ipc.ServicesResponse
	_, err := c.call(ctx, ipc.ReqListServices, ipc.ListServicesRequest{}, ipc.RespServices, &resp)
	return resp.List, err
}

// ServiceLogs returns up to lines of name's recent log output. It does
// not support follow=true; use StreamServiceLogs for that.
func (c *Client) ServiceLogs(ctx context.Context, name string, lines int) ([]string, error) {
	var resp ipc.LogsResponse
	_, err := c.call(ctx, ipc.ReqServiceLogs, ipc.ServiceLogsRequest{Name: name, Lines: lines, Follow: false}, ipc.RespLogs, &resp)
	return resp.Lines, err
}

// StreamServiceLogs opens one connection, requests name's logs with
// follow=true, and invokes onLine for each LogLine frame received until
// the daemon sends StreamEnd, the connection closes, or ctx is
// cancelled.
func (c *Client) StreamServiceLogs(ctx context.Context, name string, lines int, onLine func(string)) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	env, err := ipc.EncodeRequest(ipc.ReqServiceLogs, ipc.ServiceLogsRequest{Name: name, Lines: lines, Follow: true})
	if err != nil {
		return err
	}
	if err := wireframe.Encode(conn, env); err != nil {
		return adierrors.New(adierrors.Transient, err, "failed to write request frame")
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var respEnv ipc.ResponseEnvelope
		if err := wireframe.Decode(conn, &respEnv); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return adierrors.New(adierrors.Transient, err, "failed to read response frame")
		}

		switch respEnv.Tag {
		case ipc.RespLogLine:
			var line ipc.LogLineResponse
			if err := ipc.DecodeResponseBody(respEnv, &line); err != nil {
				return err
			}
			onLine(line.Line)
		case ipc.RespStreamEnd:
			return nil
		case ipc.RespError:
			var errResp ipc.ErrorResponse
			_ = ipc.DecodeResponseBody(respEnv, &errResp)
			return adierrors.New(adierrors.Unavailable, nil, "%s", errResp.Message)
		default:
			return adierrors.New(adierrors.Programmer, nil, "unexpected response tag %d while streaming logs", respEnv.Tag)
		}
	}
}

// Run executes cmd with args as the daemon's own user.
func (c *Client) Run(ctx context.Context, cmd string, args []string) (ipc.CommandResultResponse, error) {
	var resp ipc.CommandResultResponse
	_, err := c.call(ctx, ipc.ReqRun, ipc.RunRequest{Command: cmd, Args: args}, ipc.RespCommandResult, &resp)
	return resp, err
}

// SudoRun executes cmd with args escalated by the daemon, annotated with
// reason for audit purposes.
func (c *Client) SudoRun(ctx context.Context, cmd string, args []string, reason string) (ipc.CommandResultResponse, error) {
	var resp ipc.CommandResultResponse
	respEnv, err := c.call(ctx, ipc.ReqSudoRun, ipc.SudoRunRequest{Command: cmd, Args: args, Reason: reason}, ipc.RespCommandResult, &resp)
	if respEnv.Tag == ipc.RespSudoDenied {
		var denied ipc.SudoDeniedResponse
		_ = ipc.DecodeResponseBody(respEnv, &denied)
		return resp, adierrors.New(adierrors.Policy, nil, "privileged command denied: %s", denied.Reason)
	}
	return resp, err
}

// BindPort asks the daemon to bind the privileged port and forward
// connections to targetPort.
func (c *Client) BindPort(ctx context.Context, port, targetPort int) error {
	_, err := c.call(ctx, ipc.ReqBindPort, ipc.BindPortRequest{Port: port, TargetPort: targetPort}, ipc.RespOk, &ipc.OkResponse{})
	return err
}

// call opens a fresh connection, frames req under reqTag, awaits exactly
// one response, and decodes it into out if its tag matches wantTag. A
// RespError response is translated into a Go error; any other
// tag mismatch is returned as-is via the returned envelope so callers
// needing RespSudoDenied handling (SudoRun) can inspect it.
func (c *Client) call(ctx context.Context, reqTag ipc.RequestTag, body interface{}, wantTag ipc.ResponseTag, out interface{}) (ipc.ResponseEnvelope, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return ipc.ResponseEnvelope{}, err
	}
	defer conn.Close()

	env, err := ipc.EncodeRequest(reqTag, body)
	if err != nil {
		return ipc.ResponseEnvelope{}, err
	}
	if err := wireframe.Encode(conn, env); err != nil {
		return ipc.ResponseEnvelope{}, adierrors.New(adierrors.Transient, err, "failed to write request frame")
	}

	var respEnv ipc.ResponseEnvelope
	if err := wireframe.Decode(conn, &respEnv); err != nil {
		return ipc.ResponseEnvelope{}, adierrors.New(adierrors.Transient, err, "failed to read response frame")
	}

	if respEnv.Tag == ipc.RespError {
		var errResp ipc.ErrorResponse
		_ = ipc.DecodeResponseBody(respEnv, &errResp)
		return respEnv, adierrors.New(adierrors.Unavailable, nil, "%s", errResp.Message)
	}
	if respEnv.Tag != wantTag {
		return respEnv, nil
	}
	if err := ipc.DecodeResponseBody(respEnv, out); err != nil {
		return respEnv, err
	}
	return respEnv, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	network, addr := "unix", c.cfg.SocketPath
	if c.cfg.TCPPort != "" {
		network, addr = "tcp", "127.0.0.1:"+c.cfg.TCPPort
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, adierrors.New(adierrors.Unavailable, err, "failed to connect to daemon at %s", addr)
	}
	return conn, nil
}

func (c *Client) readPID() (int, error) {
	data, err := os.ReadFile(c.cfg.PIDPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil {
		return 0, errors.Wrap(err, "malformed pid file")
	}
	return pid, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// DefaultSocketPath returns the conventional socket path under dir (an
// XDG runtime/state directory resolved by the caller).
func DefaultSocketPath(dir string) string {
	return filepath.Join(dir, "adi-daemon.sock")
}

// DefaultPIDPath returns the conventional PID file path under dir.
func DefaultPIDPath(dir string) string {
	return filepath.Join(dir, "adi-daemon.pid")
}
