// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginlayout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-family/adi-cli/pkg/pluginapi"
)

func writeManifest(t *testing.T, dir, id, version string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	m := &pluginapi.Manifest{Plugin: pluginapi.PluginMeta{ID: id, Version: version}}
	data, err := m.Marshal()
	require.NoError(t, err)
	path := filepath.Join(dir, pluginapi.ManifestFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestResolveNotInstalled(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "adi.missing")
	assert.Error(t, err)
}

func TestResolveViaVersionFile(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.hello")
	writeManifest(t, filepath.Join(pluginDir, "1.0.0"), "adi.hello", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, VersionFileName), []byte("1.0.0\n"), 0o644))

	loc, err := Resolve(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", loc.Version)
	assert.Equal(t, filepath.Join(pluginDir, "1.0.0"), loc.BinaryDir)
}

func TestResolveLatestLinkWinsOverVersionFile(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.hello")
	writeManifest(t, filepath.Join(pluginDir, "1.0.0"), "adi.hello", "1.0.0")
	writeManifest(t, filepath.Join(pluginDir, "2.0.0"), "adi.hello", "2.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, VersionFileName), []byte("1.0.0"), 0o644))
	require.NoError(t, os.Symlink("2.0.0", filepath.Join(pluginDir, LatestLinkName)))

	loc, err := Resolve(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", loc.Version)
}

func TestResolveLatestLinkEscapingPluginDirIgnored(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.hello")
	writeManifest(t, filepath.Join(pluginDir, "1.0.0"), "adi.hello", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, VersionFileName), []byte("1.0.0"), 0o644))

	outside := filepath.Join(root, "elsewhere")
	writeManifest(t, outside, "adi.hello", "9.9.9")
	require.NoError(t, os.Symlink(outside, filepath.Join(pluginDir, LatestLinkName)))

	loc, err := Resolve(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", loc.Version)
}

func TestResolveFlatLayout(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.flat")
	writeManifest(t, pluginDir, "adi.flat", "1.0.0")

	loc, err := Resolve(root, "adi.flat")
	require.NoError(t, err)
	assert.Equal(t, pluginDir, loc.BinaryDir)
	assert.Empty(t, loc.Version)
}

func TestResolveViaSubdirectoryScan(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.scan")
	writeManifest(t, filepath.Join(pluginDir, "0.3.0"), "adi.scan", "0.3.0")

	loc, err := Resolve(root, "adi.scan")
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", loc.Version)
}

func TestResolveStaleVersionFileFallsThrough(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.stale")
	writeManifest(t, filepath.Join(pluginDir, "1.1.0"), "adi.stale", "1.1.0")
	// .version names a directory that no longer exists; the scan step
	// still finds the surviving version directory.
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, VersionFileName), []byte("9.9.9"), 0o644))

	loc, err := Resolve(root, "adi.stale")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", loc.Version)
}

func TestLoadManifest(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "adi.hello")
	writeManifest(t, filepath.Join(pluginDir, "1.0.0"), "adi.hello", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, VersionFileName), []byte("1.0.0"), 0o644))

	m, loc, err := LoadManifest(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "adi.hello", m.Plugin.ID)
	assert.Equal(t, "1.0.0", loc.Version)
}

func TestListInstalledPluginIDs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "adi.a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "adi.b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".commands"), 0o755))

	ids, err := ListInstalledPluginIDs(root, ".commands")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"adi.a", "adi.b"}, ids)
}

func TestListInstalledPluginIDsMissingRoot(t *testing.T) {
	ids, err := ListInstalledPluginIDs(filepath.Join(t.TempDir(), "nope"), ".commands")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
