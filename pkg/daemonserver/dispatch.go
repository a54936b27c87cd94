// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package daemonserver

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/aunum/log"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/healthmonitor"
	"github.com/adi-family/adi-cli/pkg/ipc"
	"github.com/adi-family/adi-cli/pkg/servicemanager"
	"github.com/adi-family/adi-cli/pkg/wireframe"
)

// dispatch decodes env.Body against its tag, performs the corresponding
// operation, and writes exactly one response frame. The exception is a
// ServiceLogs request with follow set, which writes a sequence of
// LogLine frames terminated by StreamEnd over the same connection.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	switch env.Tag {
	case ipc.ReqPing:
		return s.handlePing(conn)
	case ipc.ReqShutdown:
		return s.handleShutdown(ctx, conn, env)
	case ipc.ReqStartService:
		return s.handleStartService(ctx, conn, env)
	case ipc.ReqStopService:
		return s.handleStopService(ctx, conn, env)
	case ipc.ReqRestartService:
		return s.handleRestartService(ctx, conn, env)
	case ipc.ReqListServices:
		return s.handleListServices(conn)
	case ipc.ReqServiceLogs:
		return s.handleServiceLogs(ctx, conn, env)
	case ipc.ReqRun:
		return s.handleRun(ctx, conn, env)
	case ipc.ReqSudoRun:
		return s.handleSudoRun(ctx, conn, env)
	case ipc.ReqBindPort:
		return s.handleBindPort(ctx, conn, env)
	default:
		return s.writeError(conn, adierrors.New(adierrors.Programmer, nil, "unknown request tag %d", env.Tag))
	}
}

func (s *Server) writeResponse(conn net.Conn, tag ipc.ResponseTag, body interface{}) error {
	respEnv, err := ipc.EncodeResponse(tag, body)
	if err != nil {
		return err
	}
	return wireframe.Encode(conn, respEnv)
}

func (s *Server) writeError(conn net.Conn, err error) error {
	return s.writeResponse(conn, ipc.RespError, ipc.ErrorResponse{Message: err.Error()})
}

func (s *Server) handlePing(conn net.Conn) error {
	return s.writeResponse(conn, ipc.RespPong, ipc.PongResponse{
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
		Version:    Version,
	})
}

func (s *Server) handleShutdown(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.ShutdownRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}
	if err := s.writeResponse(conn, ipc.RespOk, ipc.OkResponse{}); err != nil {
		return err
	}
	// Unwind the accept loop through the same path a termination signal
	// takes, so there is exactly one shutdown code path.
	s.requestShutdown()
	return nil
}

func (s *Server) handleStartService(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.StartServiceRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}
	var cfg *servicemanager.Config
	if req.Config != nil {
		cfg = &servicemanager.Config{
			Name:             req.Name,
			Command:          req.Config.Command,
			RestartOnFailure: req.Config.RestartOnFailure,
			MaxRestarts:      req.Config.MaxRestarts,
		}
	}
	if err := s.services.Start(ctx, req.Name, cfg); err != nil {
		return s.writeError(conn, err)
	}
	return s.writeResponse(conn, ipc.RespOk, ipc.OkResponse{})
}

func (s *Server) handleStopService(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.StopServiceRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}
	if err := s.services.Stop(ctx, req.Name, req.Force); err != nil {
		return s.writeError(conn, err)
	}
	return s.writeResponse(conn, ipc.RespOk, ipc.OkResponse{})
}

func (s *Server) handleRestartService(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.RestartServiceRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}
	if err := s.services.Restart(ctx, req.Name); err != nil {
		return s.writeError(conn, err)
	}
	return s.writeResponse(conn, ipc.RespOk, ipc.OkResponse{})
}

func (s *Server) handleListServices(conn net.Conn) error {
	snaps := s.services.List()
	list := make([]ipc.ServiceInfo, 0, len(snaps))
	for _, snap := range snaps {
		info := ipc.ServiceInfo{
			Name:      snap.Name,
			State:     string(snap.State),
			PID:       snap.PID,
			Restarts:  snap.Restarts,
			LastError: snap.LastError,
		}
		if !snap.StartedAt.IsZero() {
			info.StartedAt = snap.StartedAt.Format(time.RFC3339)
		}
		list = append(list, info)
	}
	log.Debugf("list-services: %s", healthmonitor.Snapshot(s.services))
	return s.writeResponse(conn, ipc.RespServices, ipc.ServicesResponse{List: list})
}

func (s *Server) handleServiceLogs(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.ServiceLogsRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}

	if !req.Follow {
		lines := s.logs.Tail(req.Name, req.Lines)
		return s.writeResponse(conn, ipc.RespLogs, ipc.LogsResponse{Lines: lines})
	}

	return s.streamFollow(ctx, conn, req)
}

// streamFollow sends the requested tail as individual LogLine frames,
// then polls for newly pushed lines until the client disconnects or the
// daemon is shutting down, closing with a StreamEnd frame.
func (s *Server) streamFollow(ctx context.Context, conn net.Conn, req ipc.ServiceLogsRequest) error {
	tail := s.logs.Tail(req.Name, req.Lines)
	cursor := s.logs.Total(req.Name) - len(tail)
	if cursor < 0 {
		cursor = 0
	}
	for _, line := range tail {
		if err := s.writeResponse(conn, ipc.RespLogLine, ipc.LogLineResponse{Line: line}); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.writeResponse(conn, ipc.RespStreamEnd, ipc.StreamEndResponse{})
		case <-ticker.C:
			var fresh []string
			fresh, cursor = s.logs.Since(req.Name, cursor)
			for _, line := range fresh {
				if err := s.writeResponse(conn, ipc.RespLogLine, ipc.LogLineResponse{Line: line}); err != nil {
					// The client disconnected mid-stream; end quietly.
					return nil
				}
			}
		}
	}
}

func (s *Server) handleRun(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.RunRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}
	result, err := s.executor.RunUnprivileged(ctx, req.Command, req.Args)
	if err != nil {
		return s.writeError(conn, err)
	}
	return s.writeResponse(conn, ipc.RespCommandResult, ipc.CommandResultResponse{
		ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr,
	})
}

func (s *Server) handleSudoRun(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.SudoRunRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}
	result, err := s.executor.RunPrivileged(ctx, req.Command, req.Args, req.Reason)
	if err != nil {
		if adierrors.KindOf(err) == adierrors.Policy {
			return s.writeResponse(conn, ipc.RespSudoDenied, ipc.SudoDeniedResponse{Reason: req.Reason})
		}
		return s.writeError(conn, err)
	}
	return s.writeResponse(conn, ipc.RespCommandResult, ipc.CommandResultResponse{
		ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr,
	})
}

// handleBindPort binds the requested privileged local port and proxies
// every accepted connection to 127.0.0.1:target_port, for plugin
// services that listen on an unprivileged high port but need a
// conventional privileged one exposed on their behalf.
func (s *Server) handleBindPort(ctx context.Context, conn net.Conn, env ipc.RequestEnvelope) error {
	var req ipc.BindPortRequest
	if err := ipc.DecodeRequestBody(env, &req); err != nil {
		return s.writeError(conn, err)
	}

	listener, err := net.Listen("tcp", "0.0.0.0:"+strconv.Itoa(req.Port))
	if err != nil {
		return s.writeError(conn, adierrors.New(adierrors.Policy, err, "failed to bind privileged port %d", req.Port))
	}

	go s.proxyPort(ctx, listener, req.TargetPort)

	return s.writeResponse(conn, ipc.RespOk, ipc.OkResponse{})
}

func (s *Server) proxyPort(ctx context.Context, listener net.Listener, targetPort int) {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	target := "127.0.0.1:" + strconv.Itoa(targetPort)
	for {
		front, err := listener.Accept()
		if err != nil {
			return
		}
		go proxyConn(front, target)
	}
}

func proxyConn(front net.Conn, target string) {
	defer front.Close()
	back, err := net.Dial("tcp", target)
	if err != nil {
		log.Errorf("bind-port proxy failed to dial target %s: %v", target, err)
		return
	}
	defer back.Close()

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(back, front); done <- struct{}{} }()
	go func() { _, _ = io.Copy(front, back); done <- struct{}{} }()
	<-done
}
