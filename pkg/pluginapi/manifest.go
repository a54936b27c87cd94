// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pluginapi defines the declarative plugin manifest, the
// installed plugin data model, the capability interfaces, and the CLI
// invocation context shared between the host and plugin binaries.
package pluginapi

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/adi-family/adi-cli/pkg/version"
)

// ManifestFileName is the on-disk file name of the declarative manifest
// nested inside each version directory.
const ManifestFileName = "plugin.toml"

// Manifest is the declarative record parsed from plugin.toml. The
// document format is YAML; the historical file name is kept for
// compatibility with already-published plugin archives.
type Manifest struct {
	Plugin       PluginMeta              `yaml:"plugin"`
	CLI          *CLIDeclaration         `yaml:"cli,omitempty"`
	Daemon       *DaemonDeclaration      `yaml:"daemon,omitempty"`
	LogProvider  *LogProviderDeclaration `yaml:"log_provider,omitempty"`
	MCP          *MCPDeclaration         `yaml:"mcp,omitempty"`
	Dependencies []string                `yaml:"dependencies,omitempty"`
	Platforms    map[string]Artifact     `yaml:"platforms,omitempty"`
}

// PluginMeta holds the plugin.* fields of the manifest.
type PluginMeta struct {
	ID          string `yaml:"id"`
	Version     string `yaml:"version"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`
	Category    string `yaml:"category"`
}

// CLIDeclaration declares a user-typable subcommand.
type CLIDeclaration struct {
	Command            string   `yaml:"command"`
	Description        string   `yaml:"description"`
	Aliases            []string `yaml:"aliases,omitempty"`
	DynamicCompletions bool     `yaml:"dynamic_completions,omitempty"`
}

// DaemonDeclaration declares a daemon-managed service.
type DaemonDeclaration struct {
	Service ServiceDeclaration `yaml:"service"`
}

// ServiceDeclaration is the declarative service configuration a plugin
// manifest carries, mirrored onto servicemanager.Config at load time.
type ServiceDeclaration struct {
	Name             string `yaml:"name"`
	Command          string `yaml:"command"`
	AutoStart        bool   `yaml:"auto_start,omitempty"`
	RestartOnFailure bool   `yaml:"restart_on_failure,omitempty"`
	MaxRestarts      int    `yaml:"max_restarts,omitempty"`
}

// LogProviderDeclaration advertises the log-stream capability. Services
// optionally names the service streams the plugin can serve; empty means
// the plugin decides per request.
type LogProviderDeclaration struct {
	Services []string `yaml:"services,omitempty"`
}

// MCPDeclaration advertises the MCP tool and resource surfaces.
type MCPDeclaration struct {
	Tools     bool `yaml:"tools,omitempty"`
	Resources bool `yaml:"resources,omitempty"`
}

// Artifact is the per-platform download descriptor.
type Artifact struct {
	ArchiveURL string `yaml:"archive_url"`
	SizeBytes  int64  `yaml:"size_bytes"`
	Signature  string `yaml:"signature,omitempty"`
	Format     string `yaml:"format,omitempty"` // tar.gz | zip | raw-binary
}

// CommandNames returns the CLI command plus all declared aliases, or nil
// if the manifest declares no CLI capability.
func (m *Manifest) CommandNames() []string {
	if m.CLI == nil || m.CLI.Command == "" {
		return nil
	}
	names := make([]string, 0, 1+len(m.CLI.Aliases))
	names = append(names, m.CLI.Command)
	names = append(names, m.CLI.Aliases...)
	return names
}

// Validate enforces the manifest invariants: plugin.id matches the
// containing directory name, and plugin.version is semver-shaped.
func (m *Manifest) Validate(containingDirName string) error {
	if m.Plugin.ID == "" {
		return errors.New("manifest is missing plugin.id")
	}
	if containingDirName != "" && filepath.Base(containingDirName) != m.Plugin.ID {
		return errors.Errorf("plugin.id %q does not match containing directory %q", m.Plugin.ID, containingDirName)
	}
	if !version.IsSemverShaped(m.Plugin.Version) {
		return errors.Errorf("plugin.version %q is not semver-shaped", m.Plugin.Version)
	}
	return nil
}

// ParseManifest parses manifest bytes (YAML) into a Manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse plugin manifest")
	}
	return &m, nil
}

// Marshal serializes the manifest back to YAML, used by test fixtures and
// the plugin packaging path.
func (m *Manifest) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal plugin manifest")
	}
	return b, nil
}

// String implements fmt.Stringer for debug logging.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s@%s", m.Plugin.ID, m.Plugin.Version)
}
