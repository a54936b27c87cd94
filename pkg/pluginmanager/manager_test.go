// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginmanager

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-family/adi-cli/pkg/installer"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
	"github.com/adi-family/adi-cli/pkg/pluginlayout"
	"github.com/adi-family/adi-cli/pkg/registryclient"
	"github.com/adi-family/adi-cli/pkg/sigverify"
)

// fakeRegistry serves a catalogue and zip artifacts the way the real
// registry does, tracking how many times each artifact was downloaded.
type fakeRegistry struct {
	t       *testing.T
	srv     *httptest.Server
	plugins map[string]*registryclient.PluginInfo
	archive map[string][]byte // "<id>@<version>" -> zip bytes

	mu        sync.Mutex
	downloads map[string]int
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	fr := &fakeRegistry{
		t:         t,
		plugins:   make(map[string]*registryclient.PluginInfo),
		archive:   make(map[string][]byte),
		downloads: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/plugins", func(w http.ResponseWriter, r *http.Request) {
		var entries []registryclient.PluginEntry
		for id, info := range fr.plugins {
			entries = append(entries, registryclient.PluginEntry{ID: id, LatestVersion: info.LatestVersion})
		}
		_ = json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("/v1/plugins/", func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		info, ok := fr.plugins[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(info)
	})
	mux.HandleFunc("/artifacts/", func(w http.ResponseWriter, r *http.Request) {
		key := filepath.Base(r.URL.Path)
		body, ok := fr.archive[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fr.mu.Lock()
		fr.downloads[key]++
		fr.mu.Unlock()
		_, _ = w.Write(body)
	})
	fr.srv = httptest.NewServer(mux)
	t.Cleanup(fr.srv.Close)
	return fr
}

// add registers a plugin version whose zip artifact contains a manifest
// declaring command (if non-empty) and deps.
func (fr *fakeRegistry) add(id, version, command string, deps ...string) {
	m := &pluginapi.Manifest{
		Plugin:       pluginapi.PluginMeta{ID: id, Version: version},
		Dependencies: deps,
	}
	if command != "" {
		m.CLI = &pluginapi.CLIDeclaration{Command: command}
	}
	manifest, err := m.Marshal()
	require.NoError(fr.t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("plugin.toml")
	require.NoError(fr.t, err)
	_, err = f.Write(manifest)
	require.NoError(fr.t, err)
	require.NoError(fr.t, zw.Close())

	key := id + "@" + version
	fr.archive[key] = buf.Bytes()

	info, ok := fr.plugins[id]
	if !ok {
		info = &registryclient.PluginInfo{ID: id, Artifacts: make(map[string]map[string]registryclient.ArtifactInfo)}
		fr.plugins[id] = info
	}
	info.Versions = append(info.Versions, version)
	info.LatestVersion = version
	info.Dependencies = deps
	info.Artifacts[version] = map[string]registryclient.ArtifactInfo{
		installer.CurrentPlatformKey(): {
			ArchiveURL: fr.srv.URL + "/artifacts/" + key,
			SizeBytes:  int64(len(buf.Bytes())),
			Format:     "zip",
		},
	}
}

func (fr *fakeRegistry) downloadCount(id, version string) int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.downloads[id+"@"+version]
}

func newTestManager(t *testing.T, fr *fakeRegistry) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, registryclient.New(fr.srv.URL), sigverify.TrustedKeys{}), root
}

func TestInstall(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.hello", "1.0.0", "hello")
	m, root := newTestManager(t, fr)

	require.NoError(t, m.Install(context.Background(), "adi.hello", "", nil))

	assert.True(t, m.IsInstalled("adi.hello"))
	loc, err := pluginlayout.Resolve(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", loc.Version)

	// The command index was rebuilt with the new command.
	entry, err := os.ReadFile(filepath.Join(root, ".commands", "hello"))
	require.NoError(t, err)
	assert.Equal(t, loc.ManifestPath, string(entry))
}

func TestInstallAlreadyInstalledIsNoop(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.hello", "1.0.0", "hello")
	m, _ := newTestManager(t, fr)

	require.NoError(t, m.Install(context.Background(), "adi.hello", "", nil))
	require.NoError(t, m.Install(context.Background(), "adi.hello", "", nil))
	assert.Equal(t, 1, fr.downloadCount("adi.hello", "1.0.0"))
}

func TestInstallUnknownPlugin(t *testing.T) {
	fr := newFakeRegistry(t)
	m, _ := newTestManager(t, fr)
	assert.Error(t, m.Install(context.Background(), "adi.absent", "", nil))
}

func TestInstallWithDependenciesBreaksCycles(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.a", "1.0.0", "", "adi.b")
	fr.add("adi.b", "1.0.0", "", "adi.a")
	m, _ := newTestManager(t, fr)

	require.NoError(t, m.InstallWithDependencies(context.Background(), "adi.a", "", nil))

	assert.True(t, m.IsInstalled("adi.a"))
	assert.True(t, m.IsInstalled("adi.b"))
	assert.Equal(t, 1, fr.downloadCount("adi.a", "1.0.0"))
	assert.Equal(t, 1, fr.downloadCount("adi.b", "1.0.0"))
}

func TestInstallMatchingWithoutWildcard(t *testing.T) {
	// No wildcard must behave exactly like InstallWithDependencies.
	fr := newFakeRegistry(t)
	fr.add("adi.a", "1.0.0", "", "adi.b")
	fr.add("adi.b", "1.0.0", "")
	m, _ := newTestManager(t, fr)

	results, err := m.InstallMatching(context.Background(), "adi.a", "", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.True(t, m.IsInstalled("adi.a"))
	assert.True(t, m.IsInstalled("adi.b"))
}

func TestInstallMatchingCollectsPerPluginFailures(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.cli.de-DE", "1.0.0", "")
	fr.add("adi.cli.fr-FR", "1.0.0", "")
	// Break one artifact so its install fails while the batch continues.
	delete(fr.archive, "adi.cli.fr-FR@1.0.0")
	m, _ := newTestManager(t, fr)

	results, err := m.InstallMatching(context.Background(), "adi.cli.*", "", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := make(map[string]error, len(results))
	for _, r := range results {
		byID[r.PluginID] = r.Err
	}
	assert.NoError(t, byID["adi.cli.de-DE"])
	assert.Error(t, byID["adi.cli.fr-FR"])
	assert.True(t, m.IsInstalled("adi.cli.de-DE"))
}

func TestUninstall(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.hello", "1.0.0", "hello")
	m, root := newTestManager(t, fr)

	require.NoError(t, m.Install(context.Background(), "adi.hello", "", nil))
	require.NoError(t, m.Uninstall("adi.hello"))

	assert.False(t, m.IsInstalled("adi.hello"))
	assert.NoFileExists(t, filepath.Join(root, ".commands", "hello"))

	// Idempotent.
	require.NoError(t, m.Uninstall("adi.hello"))
}

func TestUpdateInstallsNewerVersion(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.hello", "1.0.0", "hello")
	m, root := newTestManager(t, fr)
	require.NoError(t, m.Install(context.Background(), "adi.hello", "1.0.0", nil))

	fr.add("adi.hello", "2.0.0", "hello")
	require.NoError(t, m.Update(context.Background(), "adi.hello", nil))

	loc, err := pluginlayout.Resolve(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", loc.Version)

	// The old version directory is never deleted.
	assert.DirExists(t, filepath.Join(root, "adi.hello", "1.0.0"))
}

func TestUpdateAlreadyCurrentIsNoop(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.hello", "1.0.0", "hello")
	m, _ := newTestManager(t, fr)
	require.NoError(t, m.Install(context.Background(), "adi.hello", "", nil))

	require.NoError(t, m.Update(context.Background(), "adi.hello", nil))
	assert.Equal(t, 1, fr.downloadCount("adi.hello", "1.0.0"))
}

func TestUpdateAllContinuesPastFailures(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.a", "1.0.0", "")
	fr.add("adi.b", "1.0.0", "")
	m, _ := newTestManager(t, fr)
	require.NoError(t, m.Install(context.Background(), "adi.a", "", nil))
	require.NoError(t, m.Install(context.Background(), "adi.b", "", nil))

	fr.add("adi.a", "2.0.0", "")
	fr.add("adi.b", "2.0.0", "")
	delete(fr.archive, "adi.b@2.0.0")

	results, err := m.UpdateAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := make(map[string]error, len(results))
	for _, r := range results {
		byID[r.PluginID] = r.Err
	}
	assert.NoError(t, byID["adi.a"])
	assert.Error(t, byID["adi.b"])
}

func TestInstallSpecificVersion(t *testing.T) {
	fr := newFakeRegistry(t)
	fr.add("adi.hello", "1.0.0", "hello")
	fr.add("adi.hello", "2.0.0", "hello")
	m, root := newTestManager(t, fr)

	require.NoError(t, m.Install(context.Background(), "adi.hello", "1.0.0", nil))
	loc, err := pluginlayout.Resolve(root, "adi.hello")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", loc.Version)
}

func TestInstallMatchResultString(t *testing.T) {
	ok := InstallMatchResult{PluginID: "adi.a"}
	assert.Equal(t, "adi.a: installed", ok.String())
	failed := InstallMatchResult{PluginID: "adi.b", Err: fmt.Errorf("boom")}
	assert.Contains(t, failed.String(), "boom")
}
