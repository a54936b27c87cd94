// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginapi

import (
	"context"
	"encoding/json"
)

// Capability is the tagged set of interfaces a loaded plugin may
// expose: one polymorphic interface per capability, plus the
// CapabilityKind enumeration at the bundle level. A plugin advertises
// any subset of these; the runtime dispatches by type-asserting the
// concrete capability it needs for a given request.
type Capability interface {
	// CapabilityKind identifies which of the variants below this value
	// implements, for logging and the Capabilities() bundle listing.
	CapabilityKind() CapabilityKind
}

// CapabilityKind enumerates the capability variants.
type CapabilityKind string

const (
	CapabilityCli           CapabilityKind = "cli"
	CapabilityLogProvider   CapabilityKind = "log_provider"
	CapabilityDaemonService CapabilityKind = "daemon_service"
	CapabilityMcpTools      CapabilityKind = "mcp_tools"
	CapabilityMcpResources  CapabilityKind = "mcp_resources"
)

// Cli is the capability a plugin exposes to run a CLI subcommand.
type Cli interface {
	Capability
	RunCommand(ctx context.Context, cliCtx CliContext) (CliResult, error)
	ListCommands(ctx context.Context) ([]CommandDescriptor, error)
}

// CommandDescriptor is one entry of a Cli capability's ListCommands.
type CommandDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LogProvider is the capability a plugin exposes to stream structured log
// entries.
type LogProvider interface {
	Capability
	LogStream(ctx context.Context, lsCtx LogStreamContext) (<-chan LogEntry, error)
}

// DaemonService is the capability a plugin exposes to run as a
// daemon-managed long-running service. Start runs until ctx is cancelled.
type DaemonService interface {
	Capability
	Start(ctx context.Context, dCtx DaemonContext) error
}

// McpTool describes one tool surfaced by an McpTools capability.
type McpTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema []byte `json:"input_schema"` // raw JSON schema
}

// McpTools is the capability a plugin exposes to declare callable tools.
type McpTools interface {
	Capability
	ListTools(ctx context.Context) ([]McpTool, error)
	CallTool(ctx context.Context, name string, argsJSON []byte) ([]byte, error)
}

// McpResource describes one resource surfaced by an McpResources
// capability.
type McpResource struct {
	URI         string `json:"uri"`
	Description string `json:"description"`
}

// McpResources is the capability a plugin exposes to declare readable
// resources.
type McpResources interface {
	Capability
	ListResources(ctx context.Context) ([]McpResource, error)
	ReadResource(ctx context.Context, uri string) ([]byte, error)
}

// CapabilityCall is the host-to-plugin request for a non-CLI capability
// invocation, carried JSON-encoded in the plugin subprocess's
// environment. The plugin answers with one CapabilityResult on stdout —
// except a log_stream call, which answers with one JSON LogEntry per
// stdout line until the stream ends.
type CapabilityCall struct {
	Capability CapabilityKind  `json:"capability"`
	Method     string          `json:"method"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CapabilityResult is the plugin's single-frame answer to a
// CapabilityCall.
type CapabilityResult struct {
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Capability call methods. Part of the host/plugin contract: rename one
// and already-installed plugin binaries stop answering.
const (
	MethodListTools     = "list_tools"
	MethodCallTool      = "call_tool"
	MethodListResources = "list_resources"
	MethodReadResource  = "read_resource"
	MethodLogStream     = "log_stream"
)

// CallToolRequest is the payload of a call_tool CapabilityCall.
type CallToolRequest struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ReadResourceRequest is the payload of a read_resource CapabilityCall.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}
