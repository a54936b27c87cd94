// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pluginlayout locates an installed plugin's active binary
// directory and manifest path. It is the single source of truth for
// "where do a plugin's files live right now", reused by the command
// index, the runtime loader, and the CLI dispatcher.
package pluginlayout

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
)

// VersionFileName is the file recording the currently active version
// string for an installed plugin.
const VersionFileName = ".version"

// LatestLinkName is the optional symlink/junction to the current version
// directory.
const LatestLinkName = "latest"

// Location is the resolved on-disk location of an installed plugin.
type Location struct {
	BinaryDir    string // the active binary/resources directory
	ManifestPath string // the active plugin.toml path
	Version      string // best-effort version string, "" if flat layout
}

// ErrNotInstalled matches, via errors.Is, the NotFound error Resolve
// returns when no layout can be resolved.
var ErrNotInstalled = adierrors.Sentinel(adierrors.NotFound)

// Resolve applies the four-step resolution order:
//  1. <root>/<id>/latest symlink, if it resolves inside the plugin dir.
//  2. <root>/<id>/.version naming an existing sibling directory.
//  3. <root>/<id>/plugin.toml directly (flat layout).
//  4. One level of immediate subdirectories containing a plugin.toml.
func Resolve(pluginsRoot, pluginID string) (Location, error) {
	pluginDir := filepath.Join(pluginsRoot, pluginID)

	if loc, ok := resolveViaLatestLink(pluginDir); ok {
		return loc, nil
	}
	if loc, ok := resolveViaVersionFile(pluginDir); ok {
		return loc, nil
	}
	if loc, ok := resolveFlatLayout(pluginDir); ok {
		return loc, nil
	}
	if loc, ok := resolveViaScan(pluginDir); ok {
		return loc, nil
	}

	return Location{}, adierrors.New(adierrors.NotFound, nil, "plugin %q is not installed", pluginID)
}

func resolveViaLatestLink(pluginDir string) (Location, bool) {
	linkPath := filepath.Join(pluginDir, LatestLinkName)
	target, err := os.Readlink(linkPath)
	if err != nil {
		return Location{}, false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(pluginDir, target)
	}
	target, err = filepath.EvalSymlinks(target)
	if err != nil {
		return Location{}, false
	}
	resolvedPluginDir, err := filepath.EvalSymlinks(pluginDir)
	if err != nil {
		resolvedPluginDir = pluginDir
	}
	rel, err := filepath.Rel(resolvedPluginDir, target)
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		return Location{}, false
	}
	manifest := filepath.Join(target, pluginapi.ManifestFileName)
	if !fileExists(manifest) {
		return Location{}, false
	}
	return Location{BinaryDir: target, ManifestPath: manifest, Version: filepath.Base(target)}, true
}

func resolveViaVersionFile(pluginDir string) (Location, bool) {
	versionFile := filepath.Join(pluginDir, VersionFileName)
	data, err := os.ReadFile(versionFile)
	if err != nil {
		return Location{}, false
	}
	ver := trimVersion(string(data))
	if ver == "" {
		return Location{}, false
	}
	versionDir := filepath.Join(pluginDir, ver)
	manifest := filepath.Join(versionDir, pluginapi.ManifestFileName)
	if !dirExists(versionDir) || !fileExists(manifest) {
		return Location{}, false
	}
	return Location{BinaryDir: versionDir, ManifestPath: manifest, Version: ver}, true
}

func resolveFlatLayout(pluginDir string) (Location, bool) {
	manifest := filepath.Join(pluginDir, pluginapi.ManifestFileName)
	if !fileExists(manifest) {
		return Location{}, false
	}
	return Location{BinaryDir: pluginDir, ManifestPath: manifest}, true
}

func resolveViaScan(pluginDir string) (Location, bool) {
	entries, err := os.ReadDir(pluginDir)
	if err != nil {
		return Location{}, false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifest := filepath.Join(pluginDir, e.Name(), pluginapi.ManifestFileName)
		if fileExists(manifest) {
			return Location{BinaryDir: filepath.Join(pluginDir, e.Name()), ManifestPath: manifest, Version: e.Name()}, true
		}
	}
	return Location{}, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func trimVersion(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

// LoadManifest resolves a plugin's layout and parses its manifest in one
// step, the convenience entry point most callers (Command Index rebuild,
// runtime load) actually want.
func LoadManifest(pluginsRoot, pluginID string) (*pluginapi.Manifest, Location, error) {
	loc, err := Resolve(pluginsRoot, pluginID)
	if err != nil {
		return nil, Location{}, err
	}
	data, err := os.ReadFile(loc.ManifestPath)
	if err != nil {
		return nil, loc, errors.Wrapf(err, "failed to read manifest at %s", loc.ManifestPath)
	}
	m, err := pluginapi.ParseManifest(data)
	if err != nil {
		return nil, loc, err
	}
	return m, loc, nil
}

// ListInstalledPluginIDs enumerates the plugin_id subdirectories directly
// under the plugins root, excluding the Command Index directory.
func ListInstalledPluginIDs(pluginsRoot, commandIndexDirName string) ([]string, error) {
	entries, err := os.ReadDir(pluginsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list plugins root")
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == commandIndexDirName {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}
