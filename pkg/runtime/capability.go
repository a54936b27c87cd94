// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
)

// ListTools asks id's mcp-tools capability for its tool catalogue.
func (rt *Runtime) ListTools(ctx context.Context, id string) ([]pluginapi.McpTool, error) {
	payload, err := rt.invokeCapability(ctx, id, pluginapi.CapabilityMcpTools, pluginapi.MethodListTools, nil)
	if err != nil {
		return nil, err
	}
	var tools []pluginapi.McpTool
	if err := json.Unmarshal(payload, &tools); err != nil {
		return nil, adierrors.New(adierrors.Programmer, err, "malformed tool list from plugin %q", id)
	}
	return tools, nil
}

// CallTool invokes one of id's declared tools with a JSON argument
// object and returns the tool's JSON result.
func (rt *Runtime) CallTool(ctx context.Context, id, name string, argsJSON []byte) ([]byte, error) {
	payload, err := rt.invokeCapability(ctx, id, pluginapi.CapabilityMcpTools, pluginapi.MethodCallTool,
		pluginapi.CallToolRequest{Name: name, Args: argsJSON})
	if err != nil {
		return nil, err
	}
	var result []byte
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, adierrors.New(adierrors.Programmer, err, "malformed tool result from plugin %q", id)
	}
	return result, nil
}

// ListResources asks id's mcp-resources capability for its resource
// catalogue.
func (rt *Runtime) ListResources(ctx context.Context, id string) ([]pluginapi.McpResource, error) {
	payload, err := rt.invokeCapability(ctx, id, pluginapi.CapabilityMcpResources, pluginapi.MethodListResources, nil)
	if err != nil {
		return nil, err
	}
	var resources []pluginapi.McpResource
	if err := json.Unmarshal(payload, &resources); err != nil {
		return nil, adierrors.New(adierrors.Programmer, err, "malformed resource list from plugin %q", id)
	}
	return resources, nil
}

// ReadResource reads one of id's declared resources by URI.
func (rt *Runtime) ReadResource(ctx context.Context, id, uri string) ([]byte, error) {
	payload, err := rt.invokeCapability(ctx, id, pluginapi.CapabilityMcpResources, pluginapi.MethodReadResource,
		pluginapi.ReadResourceRequest{URI: uri})
	if err != nil {
		return nil, err
	}
	var content []byte
	if err := json.Unmarshal(payload, &content); err != nil {
		return nil, adierrors.New(adierrors.Programmer, err, "malformed resource content from plugin %q", id)
	}
	return content, nil
}

// LogStream opens id's log-provider stream. Entries arrive on the
// returned channel until the plugin ends the stream or ctx is
// cancelled; the channel is closed either way.
func (rt *Runtime) LogStream(ctx context.Context, id string, lsCtx pluginapi.LogStreamContext) (<-chan pluginapi.LogEntry, error) {
	cmd, err := rt.capabilityCommand(ctx, id, pluginapi.CapabilityLogProvider, pluginapi.MethodLogStream, lsCtx)
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, adierrors.New(adierrors.Transient, err, "failed to start log stream for plugin %q", id)
	}

	entries := make(chan pluginapi.LogEntry)
	go func() {
		defer close(entries)
		defer func() { _ = cmd.Wait() }()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			var entry pluginapi.LogEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				continue
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return entries, nil
}

// invokeCapability runs id's binary for one single-frame capability
// call and returns the result payload.
func (rt *Runtime) invokeCapability(ctx context.Context, id string, kind pluginapi.CapabilityKind, method string, payload interface{}) (json.RawMessage, error) {
	cmd, err := rt.capabilityCommand(ctx, id, kind, method, payload)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	var result pluginapi.CapabilityResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		if runErr != nil {
			return nil, adierrors.New(adierrors.Transient, runErr, "capability call %s/%s to plugin %q failed: %s", kind, method, id, stderr.String())
		}
		return nil, adierrors.New(adierrors.Programmer, err, "malformed capability result from plugin %q", id)
	}
	if result.Error != "" {
		return nil, adierrors.New(adierrors.Unavailable, nil, "plugin %q: %s", id, result.Error)
	}
	return result.Payload, nil
}

// capabilityCommand builds the subprocess for a capability call without
// starting it: the binary invoked with the JSON CapabilityCall in its
// environment.
func (rt *Runtime) capabilityCommand(ctx context.Context, id string, kind pluginapi.CapabilityKind, method string, payload interface{}) (*exec.Cmd, error) {
	lp, ok := rt.Get(id)
	if !ok {
		return nil, adierrors.New(adierrors.NotFound, nil, "plugin %q is not loaded", id)
	}
	if !lp.HasCapability(kind) {
		return nil, adierrors.New(adierrors.Policy, nil, "plugin %q declares no %s capability", id, kind)
	}

	call := pluginapi.CapabilityCall{Capability: kind, Method: method}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, adierrors.New(adierrors.Programmer, err, "failed to encode capability call for %q", id)
		}
		call.Payload = raw
	}
	encoded, err := json.Marshal(call)
	if err != nil {
		return nil, adierrors.New(adierrors.Programmer, err, "failed to encode capability call for %q", id)
	}

	binPath := lp.binaryPath()
	if _, err := os.Stat(binPath); err != nil {
		return nil, adierrors.New(adierrors.NotFound, err, "plugin binary for %q does not exist at %s", id, binPath)
	}

	cmd := exec.CommandContext(ctx, binPath) //nolint:gosec
	cmd.Env = append(os.Environ(), common.EnvCapabilityCall+"="+string(encoded))
	return cmd, nil
}
