// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package commandindex

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-family/adi-cli/pkg/pluginapi"
)

func installFixture(t *testing.T, root, id, command string, aliases ...string) {
	t.Helper()
	versionDir := filepath.Join(root, id, "1.0.0")
	require.NoError(t, os.MkdirAll(versionDir, 0o755))
	m := &pluginapi.Manifest{
		Plugin: pluginapi.PluginMeta{ID: id, Version: "1.0.0"},
		CLI:    &pluginapi.CLIDeclaration{Command: command, Aliases: aliases},
	}
	data, err := m.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, pluginapi.ManifestFileName), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, id, ".version"), []byte("1.0.0"), 0o644))
}

func entryNames(t *testing.T, idx *Index) []string {
	t.Helper()
	entries, err := idx.ListAll()
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func TestRebuildAndResolve(t *testing.T) {
	root := t.TempDir()
	installFixture(t, root, "adi.hello", "hello", "hi")
	idx := New(root)

	require.NoError(t, idx.Rebuild())

	path, ok := idx.Resolve("hello")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "adi.hello", "1.0.0", pluginapi.ManifestFileName), path)

	aliasPath, ok := idx.Resolve("hi")
	require.True(t, ok)
	assert.Equal(t, path, aliasPath)

	_, ok = idx.Resolve("nope")
	assert.False(t, ok)
}

func TestResolveStaleEntryIsMiss(t *testing.T) {
	root := t.TempDir()
	installFixture(t, root, "adi.hello", "hello")
	idx := New(root)
	require.NoError(t, idx.Rebuild())

	// Remove the plugin behind the index's back; the dangling entry must
	// read as a miss, not an error.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "adi.hello")))
	_, ok := idx.Resolve("hello")
	assert.False(t, ok)
}

func TestRebuildRemovesStaleEntries(t *testing.T) {
	root := t.TempDir()
	installFixture(t, root, "adi.a", "alpha")
	installFixture(t, root, "adi.b", "beta")
	idx := New(root)
	require.NoError(t, idx.Rebuild())
	assert.Equal(t, []string{"alpha", "beta"}, entryNames(t, idx))

	require.NoError(t, os.RemoveAll(filepath.Join(root, "adi.a")))
	require.NoError(t, idx.Rebuild())
	assert.Equal(t, []string{"beta"}, entryNames(t, idx))
}

func TestRebuildConvergesToIdenticalResult(t *testing.T) {
	// An install/uninstall sequence must leave the same index a scratch
	// rebuild produces.
	root := t.TempDir()
	installFixture(t, root, "adi.a", "alpha", "a")
	installFixture(t, root, "adi.b", "beta")
	idx := New(root)
	require.NoError(t, idx.Rebuild())
	require.NoError(t, os.RemoveAll(filepath.Join(root, "adi.a")))
	require.NoError(t, idx.Rebuild())
	incremental := entryNames(t, idx)

	scratch := t.TempDir()
	installFixture(t, scratch, "adi.b", "beta")
	scratchIdx := New(scratch)
	require.NoError(t, scratchIdx.Rebuild())

	assert.Equal(t, entryNames(t, scratchIdx), incremental)
}

func TestListAllEmptyWithoutIndexDir(t *testing.T) {
	idx := New(t.TempDir())
	entries, err := idx.ListAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIsStale(t *testing.T) {
	root := t.TempDir()
	idx := New(root)

	// No index directory at all: stale by definition.
	stale, err := idx.IsStale()
	require.NoError(t, err)
	assert.True(t, stale)

	installFixture(t, root, "adi.hello", "hello")
	require.NoError(t, idx.Rebuild())
	stale, err = idx.IsStale()
	require.NoError(t, err)
	assert.False(t, stale)
}
