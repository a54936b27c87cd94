// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package runtime owns the set of loaded plugins and the capability
// dispatch surface (Cli, LogProvider, DaemonService, McpTools,
// McpResources).
//
// The plugin ABI is subprocess-based: each plugin is a separate
// executable invoked with captured stdout/stderr, handed its invocation
// context through the environment. The runtime loads every installed
// plugin and routes requests by declared capability.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/aunum/log"
	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/commandindex"
	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
	"github.com/adi-family/adi-cli/pkg/pluginlayout"

	"sync"
)

// LoadedPlugin bundles a parsed manifest, its resolved binary location,
// and the capability set it advertises.
type LoadedPlugin struct {
	Manifest     *pluginapi.Manifest
	Location     pluginlayout.Location
	Capabilities map[pluginapi.CapabilityKind]bool
}

// HasCapability reports whether this plugin advertises kind.
func (lp *LoadedPlugin) HasCapability(kind pluginapi.CapabilityKind) bool {
	return lp.Capabilities[kind]
}

func (lp *LoadedPlugin) binaryPath() string {
	name := lp.Manifest.Plugin.ID
	return filepath.Join(lp.Location.BinaryDir, name)
}

// Runtime is the lock-guarded registry of loaded plugins.
type Runtime struct {
	mu          sync.RWMutex
	pluginsRoot string
	plugins     map[string]*LoadedPlugin
	index       *commandindex.Index
}

// New returns a Runtime rooted at pluginsRoot, using idx as its Command
// Index fast path.
func New(pluginsRoot string, idx *commandindex.Index) *Runtime {
	return &Runtime{
		pluginsRoot: pluginsRoot,
		plugins:     make(map[string]*LoadedPlugin),
		index:       idx,
	}
}

// LoadAll loads every plugin subdirectory under the plugins root
// (excluding the command index directory). A load failure for one plugin
// is logged and does not abort the rest.
func (rt *Runtime) LoadAll() error {
	ids, err := pluginlayout.ListInstalledPluginIDs(rt.pluginsRoot, common.CommandIndexDirName)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := rt.ScanAndLoad(id); err != nil {
			log.Errorf("failed to load plugin %q: %v", id, err)
		}
	}
	return nil
}

// ScanAndLoad loads exactly one plugin by id.
func (rt *Runtime) ScanAndLoad(id string) error {
	manifest, loc, err := pluginlayout.LoadManifest(rt.pluginsRoot, id)
	if err != nil {
		return err
	}

	caps := make(map[pluginapi.CapabilityKind]bool)
	if manifest.CLI != nil {
		caps[pluginapi.CapabilityCli] = true
	}
	if manifest.Daemon != nil {
		caps[pluginapi.CapabilityDaemonService] = true
	}
	if manifest.LogProvider != nil {
		caps[pluginapi.CapabilityLogProvider] = true
	}
	if manifest.MCP != nil && manifest.MCP.Tools {
		caps[pluginapi.CapabilityMcpTools] = true
	}
	if manifest.MCP != nil && manifest.MCP.Resources {
		caps[pluginapi.CapabilityMcpResources] = true
	}

	rt.mu.Lock()
	rt.plugins[id] = &LoadedPlugin{Manifest: manifest, Location: loc, Capabilities: caps}
	rt.mu.Unlock()
	return nil
}

// Get returns the loaded plugin for id, if loaded.
func (rt *Runtime) Get(id string) (*LoadedPlugin, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	lp, ok := rt.plugins[id]
	return lp, ok
}

// CommandEntry is one row of a discover_cli_commands result.
type CommandEntry struct {
	Command     string
	PluginID    string
	Description string
	Aliases     []string
}

// DiscoverCLICommands performs a manifest-only scan: it never loads a
// plugin binary. It prefers the command index fast path, falling back to
// a full scan (and triggering an index rebuild) when the index looks
// stale or is unusable.
func (rt *Runtime) DiscoverCLICommands() ([]CommandEntry, error) {
	stale, err := rt.index.IsStale()
	if err != nil || stale {
		if rebuildErr := rt.index.Rebuild(); rebuildErr != nil {
			log.Errorf("command index rebuild during discovery failed: %v", rebuildErr)
		}
	}

	entries, err := rt.index.ListAll()
	if err != nil || len(entries) == 0 {
		return rt.discoverViaFullScan()
	}

	seen := make(map[string]*CommandEntry) // manifest path -> entry
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		ce, ok := seen[e.ManifestPath]
		if !ok {
			data, readErr := os.ReadFile(e.ManifestPath)
			if readErr != nil {
				continue
			}
			m, parseErr := pluginapi.ParseManifest(data)
			if parseErr != nil || m.CLI == nil {
				continue
			}
			ce = &CommandEntry{Command: m.CLI.Command, PluginID: m.Plugin.ID, Description: m.CLI.Description}
			seen[e.ManifestPath] = ce
			order = append(order, e.ManifestPath)
		}
		if e.Name != ce.Command {
			ce.Aliases = append(ce.Aliases, e.Name)
		}
	}

	out := make([]CommandEntry, 0, len(order))
	for _, path := range order {
		out = append(out, *seen[path])
	}
	return out, nil
}

func (rt *Runtime) discoverViaFullScan() ([]CommandEntry, error) {
	ids, err := pluginlayout.ListInstalledPluginIDs(rt.pluginsRoot, common.CommandIndexDirName)
	if err != nil {
		return nil, err
	}
	out := make([]CommandEntry, 0, len(ids))
	for _, id := range ids {
		m, _, err := pluginlayout.LoadManifest(rt.pluginsRoot, id)
		if err != nil || m.CLI == nil {
			continue
		}
		out = append(out, CommandEntry{
			Command:     m.CLI.Command,
			PluginID:    m.Plugin.ID,
			Description: m.CLI.Description,
			Aliases:     m.CLI.Aliases,
		})
	}
	return out, nil
}

// RunCLICommand splits rawArgs into subcommand, options, and positional
// arguments, builds the CliContext, and dispatches to id's Cli
// capability by executing its plugin binary.
func (rt *Runtime) RunCLICommand(ctx context.Context, id string, rawArgs []string, cwd string, env map[string]string) (pluginapi.CliResult, error) {
	lp, ok := rt.Get(id)
	if !ok {
		return pluginapi.CliResult{}, adierrors.New(adierrors.NotFound, nil, "plugin %q is not loaded", id)
	}
	if !lp.HasCapability(pluginapi.CapabilityCli) {
		return pluginapi.CliResult{}, adierrors.New(adierrors.Policy, nil, "plugin %q declares no cli capability", id)
	}

	subcommand, positional, options := pluginapi.ParseArgs(rawArgs)
	cliCtx := pluginapi.CliContext{
		Command:    lp.Manifest.CLI.Command,
		Subcommand: subcommand,
		Positional: positional,
		Options:    options,
		Cwd:        cwd,
		Env:        env,
	}
	encodedCtx, err := json.Marshal(cliCtx)
	if err != nil {
		return pluginapi.CliResult{}, adierrors.New(adierrors.Programmer, err, "failed to encode cli context for %q", id)
	}

	binPath := lp.binaryPath()
	if _, err := os.Stat(binPath); err != nil {
		return pluginapi.CliResult{}, adierrors.New(adierrors.NotFound, err, "plugin binary for %q does not exist at %s", id, binPath)
	}

	cmd := exec.CommandContext(ctx, binPath, rawArgs...) //nolint:gosec
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = append(os.Environ(), common.EnvCliContext+"="+string(encodedCtx))
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return pluginapi.CliResult{}, adierrors.New(adierrors.Transient, err, "failed to run plugin %q", id)
		}
	}

	return pluginapi.CliResult{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
