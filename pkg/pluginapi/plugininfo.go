// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginapi

// PluginInfo describes an installed plugin's resolved, on-disk identity —
// the minimal record the runtime and CLI dispatcher need once a plugin's
// layout has been resolved (pkg/pluginlayout).
type PluginInfo struct {
	ID               string   `json:"id" yaml:"id"`
	Version          string   `json:"version" yaml:"version"`
	Name             string   `json:"name" yaml:"name"`
	Description      string   `json:"description" yaml:"description"`
	Command          string   `json:"command,omitempty" yaml:"command,omitempty"`
	Aliases          []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	InstallationPath string   `json:"installationPath" yaml:"installationPath"`
	ManifestPath     string   `json:"manifestPath" yaml:"manifestPath"`
}
