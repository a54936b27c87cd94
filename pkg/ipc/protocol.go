// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the Request/Response tagged unions carried inside
// each wire frame. Variant ordinals are part of the wire contract:
// never renumber or delete one, only append, so server and client stay
// wire compatible across version skew.
package ipc

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// RequestTag identifies which Request variant an Envelope carries.
type RequestTag uint16

// Request variant ordinals. Append only; never renumber or delete.
const (
	ReqPing RequestTag = iota
	ReqShutdown
	ReqStartService
	ReqStopService
	ReqRestartService
	ReqListServices
	ReqServiceLogs
	ReqRun
	ReqSudoRun
	ReqBindPort
)

// ResponseTag identifies which Response variant an Envelope carries.
type ResponseTag uint16

// Response variant ordinals. Append only; never renumber or delete.
const (
	RespPong ResponseTag = iota
	RespOk
	RespError
	RespServices
	RespLogs
	RespLogLine
	RespStreamEnd
	RespCommandResult
	RespSudoDenied
)

// RequestEnvelope is the on-the-wire shape of every client-to-server
// frame: a stable tag plus a deferred-decode body. Reading Tag never
// requires decoding Body.
type RequestEnvelope struct {
	Tag  RequestTag      `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// ResponseEnvelope is the on-the-wire shape of every server→client frame.
type ResponseEnvelope struct {
	Tag  ResponseTag     `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// --- Request bodies ---

type PingRequest struct{}

type ShutdownRequest struct {
	Graceful bool `cbor:"graceful"`
}

type StartServiceRequest struct {
	Name   string         `cbor:"name"`
	Config *ServiceConfig `cbor:"config,omitempty"`
}

type StopServiceRequest struct {
	Name  string `cbor:"name"`
	Force bool   `cbor:"force"`
}

type RestartServiceRequest struct {
	Name string `cbor:"name"`
}

type ListServicesRequest struct{}

type ServiceLogsRequest struct {
	Name   string `cbor:"name"`
	Lines  int    `cbor:"lines"`
	Follow bool   `cbor:"follow"`
}

type RunRequest struct {
	Command string   `cbor:"command"`
	Args    []string `cbor:"args"`
}

type SudoRunRequest struct {
	Command string   `cbor:"command"`
	Args    []string `cbor:"args"`
	Reason  string   `cbor:"reason"`
}

type BindPortRequest struct {
	Port       int `cbor:"port"`
	TargetPort int `cbor:"target_port"`
}

// ServiceConfig is the wire shape of a service's daemon-managed
// configuration, mirrored from the manifest's daemon.service block
// (pkg/pluginapi.ServiceDeclaration) or supplied ad hoc in a
// StartService request.
type ServiceConfig struct {
	Command          string `cbor:"command"`
	RestartOnFailure bool   `cbor:"restart_on_failure"`
	MaxRestarts      int    `cbor:"max_restarts"`
}

// --- Response bodies ---

type PongResponse struct {
	UptimeSecs int64  `cbor:"uptime_secs"`
	Version    string `cbor:"version"`
}

type OkResponse struct{}

type ErrorResponse struct {
	Message string `cbor:"message"`
}

type ServicesResponse struct {
	List []ServiceInfo `cbor:"list"`
}

// ServiceInfo is one entry of a ListServices response. Health fields
// ride along here rather than in a dedicated Response variant, keeping
// the variant set append-only.
type ServiceInfo struct {
	Name      string `cbor:"name"`
	State     string `cbor:"state"`
	PID       int    `cbor:"pid,omitempty"`
	Restarts  int    `cbor:"restarts"`
	LastError string `cbor:"last_error,omitempty"`
	StartedAt string `cbor:"started_at,omitempty"`
}

type LogsResponse struct {
	Lines []string `cbor:"lines"`
}

type LogLineResponse struct {
	Line string `cbor:"line"`
}

type StreamEndResponse struct{}

type CommandResultResponse struct {
	ExitCode int    `cbor:"exit_code"`
	Stdout   string `cbor:"stdout"`
	Stderr   string `cbor:"stderr"`
}

type SudoDeniedResponse struct {
	Reason string `cbor:"reason"`
}

// EncodeRequest wraps a typed request body into its RequestEnvelope.
func EncodeRequest(tag RequestTag, body interface{}) (RequestEnvelope, error) {
	raw, err := cbor.Marshal(body)
	if err != nil {
		return RequestEnvelope{}, errors.Wrap(err, "failed to encode request body")
	}
	return RequestEnvelope{Tag: tag, Body: raw}, nil
}

// EncodeResponse wraps a typed response body into its ResponseEnvelope.
func EncodeResponse(tag ResponseTag, body interface{}) (ResponseEnvelope, error) {
	raw, err := cbor.Marshal(body)
	if err != nil {
		return ResponseEnvelope{}, errors.Wrap(err, "failed to encode response body")
	}
	return ResponseEnvelope{Tag: tag, Body: raw}, nil
}

// DecodeRequestBody decodes env.Body into out, which must match the shape
// implied by env.Tag.
func DecodeRequestBody(env RequestEnvelope, out interface{}) error {
	if err := cbor.Unmarshal(env.Body, out); err != nil {
		return errors.Wrap(err, "failed to decode request body")
	}
	return nil
}

// DecodeResponseBody decodes env.Body into out, which must match the shape
// implied by env.Tag.
func DecodeResponseBody(env ResponseEnvelope, out interface{}) error {
	if err := cbor.Unmarshal(env.Body, out); err != nil {
		return errors.Wrap(err, "failed to decode response body")
	}
	return nil
}
