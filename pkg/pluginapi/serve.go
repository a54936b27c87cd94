// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginapi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/adi-family/adi-cli/pkg/common"
)

// Bundle is the capability set a plugin binary exposes. Any field may be
// nil; a call against a nil capability is answered with an error.
type Bundle struct {
	Cli           Cli
	LogProvider   LogProvider
	DaemonService DaemonService
	McpTools      McpTools
	McpResources  McpResources
}

// Serve is the plugin-side counterpart of the host runtime's dispatch: a
// plugin binary's main calls Serve(bundle) instead of parsing os.Args
// itself. The invocation kind is selected by which environment variable
// the host set: a capability call (log stream, MCP tools/resources), a
// daemon service context, or a CLI context. There is no RPC handshake:
// the ABI is one environment variable and ordinary stdio.
func Serve(ctx context.Context, b Bundle) {
	if raw := os.Getenv(common.EnvCapabilityCall); raw != "" {
		serveCapabilityCall(ctx, b, raw)
		return
	}
	if raw := os.Getenv(common.EnvDaemonContext); raw != "" {
		serveDaemon(ctx, b, raw)
		return
	}
	if raw := os.Getenv(common.EnvCliContext); raw != "" {
		serveCli(ctx, b, raw)
		return
	}
	fmt.Fprintln(os.Stderr, "adi: no invocation context; this binary must be invoked by the adi runtime")
	os.Exit(1)
}

func serveCli(ctx context.Context, b Bundle, raw string) {
	if b.Cli == nil {
		fmt.Fprintln(os.Stderr, "adi: this plugin has no cli capability")
		os.Exit(1)
	}

	var cliCtx CliContext
	if err := json.Unmarshal([]byte(raw), &cliCtx); err != nil {
		fmt.Fprintf(os.Stderr, "adi: malformed CLI context: %v\n", err)
		os.Exit(1)
	}

	result, err := b.Cli.RunCommand(ctx, cliCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adi: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprint(os.Stdout, result.Stdout)
	fmt.Fprint(os.Stderr, result.Stderr)
	os.Exit(result.ExitCode)
}

func serveDaemon(ctx context.Context, b Bundle, raw string) {
	if b.DaemonService == nil {
		fmt.Fprintln(os.Stderr, "adi: this plugin has no daemon service capability")
		os.Exit(1)
	}

	var dCtx DaemonContext
	if err := json.Unmarshal([]byte(raw), &dCtx); err != nil {
		fmt.Fprintf(os.Stderr, "adi: malformed daemon context: %v\n", err)
		os.Exit(1)
	}

	if err := b.DaemonService.Start(ctx, dCtx); err != nil {
		fmt.Fprintf(os.Stderr, "adi: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func serveCapabilityCall(ctx context.Context, b Bundle, raw string) {
	var call CapabilityCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		exitCapabilityError(fmt.Errorf("malformed capability call: %v", err))
	}

	// The log stream is the one call that answers with many frames: one
	// JSON LogEntry per line until the provider closes the channel.
	if call.Capability == CapabilityLogProvider && call.Method == MethodLogStream {
		if b.LogProvider == nil {
			exitCapabilityError(fmt.Errorf("this plugin has no log provider capability"))
		}
		var lsCtx LogStreamContext
		if err := json.Unmarshal(call.Payload, &lsCtx); err != nil {
			exitCapabilityError(fmt.Errorf("malformed log stream context: %v", err))
		}
		entries, err := b.LogProvider.LogStream(ctx, lsCtx)
		if err != nil {
			exitCapabilityError(err)
		}
		enc := json.NewEncoder(os.Stdout)
		for entry := range entries {
			if err := enc.Encode(entry); err != nil {
				os.Exit(1)
			}
		}
		os.Exit(0)
	}

	payload, err := dispatchCapabilityCall(ctx, b, call)
	if err != nil {
		exitCapabilityError(err)
	}
	_ = json.NewEncoder(os.Stdout).Encode(CapabilityResult{Payload: payload})
	os.Exit(0)
}

func dispatchCapabilityCall(ctx context.Context, b Bundle, call CapabilityCall) (json.RawMessage, error) {
	switch {
	case call.Capability == CapabilityMcpTools && call.Method == MethodListTools:
		if b.McpTools == nil {
			return nil, fmt.Errorf("this plugin has no mcp tools capability")
		}
		tools, err := b.McpTools.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(tools)

	case call.Capability == CapabilityMcpTools && call.Method == MethodCallTool:
		if b.McpTools == nil {
			return nil, fmt.Errorf("this plugin has no mcp tools capability")
		}
		var req CallToolRequest
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("malformed tool call: %v", err)
		}
		result, err := b.McpTools.CallTool(ctx, req.Name, req.Args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	case call.Capability == CapabilityMcpResources && call.Method == MethodListResources:
		if b.McpResources == nil {
			return nil, fmt.Errorf("this plugin has no mcp resources capability")
		}
		resources, err := b.McpResources.ListResources(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resources)

	case call.Capability == CapabilityMcpResources && call.Method == MethodReadResource:
		if b.McpResources == nil {
			return nil, fmt.Errorf("this plugin has no mcp resources capability")
		}
		var req ReadResourceRequest
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("malformed resource read: %v", err)
		}
		content, err := b.McpResources.ReadResource(ctx, req.URI)
		if err != nil {
			return nil, err
		}
		return json.Marshal(content)

	default:
		return nil, fmt.Errorf("unsupported capability call %s/%s", call.Capability, call.Method)
	}
}

func exitCapabilityError(err error) {
	_ = json.NewEncoder(os.Stdout).Encode(CapabilityResult{Error: err.Error()})
	os.Exit(1)
}
