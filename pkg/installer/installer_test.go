// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-family/adi-cli/pkg/commandindex"
	"github.com/adi-family/adi-cli/pkg/registryclient"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func artifactServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstallZipPublishesPointerLast(t *testing.T) {
	root := t.TempDir()
	archive := zipArchive(t, map[string]string{
		"plugin.toml": "plugin:\n  id: adi.hello\n  version: 1.0.0\n",
		"adi.hello":   "#!/bin/sh\necho hello\n",
	})
	srv := artifactServer(t, archive)

	inst := New(root, registryclient.New(srv.URL))
	err := inst.Install(Request{
		PluginID:     "adi.hello",
		Version:      "1.0.0",
		ArchiveURL:   srv.URL,
		ExpectedSize: int64(len(archive)),
		Format:       "zip",
	}, nil)
	require.NoError(t, err)

	pluginDir := filepath.Join(root, "adi.hello")
	verFile, err := os.ReadFile(filepath.Join(pluginDir, ".version"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", string(verFile))

	target, err := os.Readlink(filepath.Join(pluginDir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", target)

	manifest := filepath.Join(pluginDir, "1.0.0", "plugin.toml")
	assert.FileExists(t, manifest)

	info, err := os.Stat(filepath.Join(pluginDir, "1.0.0", "adi.hello"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// No staging residue.
	entries, err := os.ReadDir(pluginDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-")
	}
}

func TestInstallRawBinary(t *testing.T) {
	root := t.TempDir()
	body := []byte("raw executable")
	srv := artifactServer(t, body)

	inst := New(root, registryclient.New(srv.URL))
	err := inst.Install(Request{
		PluginID:     "adi.tool",
		Version:      "0.1.0",
		ArchiveURL:   srv.URL,
		ExpectedSize: int64(len(body)),
		Format:       "raw-binary",
		BinaryName:   "adi.tool",
	}, nil)
	require.NoError(t, err)

	bin := filepath.Join(root, "adi.tool", "0.1.0", "adi.tool")
	data, err := os.ReadFile(bin)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestInstallSizeMismatchLeavesNoPointer(t *testing.T) {
	root := t.TempDir()
	srv := artifactServer(t, []byte("tiny"))

	inst := New(root, registryclient.New(srv.URL))
	err := inst.Install(Request{
		PluginID:     "adi.hello",
		Version:      "1.0.0",
		ArchiveURL:   srv.URL,
		ExpectedSize: 4096,
		Format:       "zip",
	}, nil)
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(root, "adi.hello", ".version"))
}

func TestInstallUnsupportedFormat(t *testing.T) {
	root := t.TempDir()
	srv := artifactServer(t, []byte("x"))

	inst := New(root, registryclient.New(srv.URL))
	err := inst.Install(Request{
		PluginID:     "adi.hello",
		Version:      "1.0.0",
		ArchiveURL:   srv.URL,
		ExpectedSize: 1,
		Format:       "7z",
	}, nil)
	assert.Error(t, err)
}

func TestInstallIsIdempotent(t *testing.T) {
	root := t.TempDir()
	archive := zipArchive(t, map[string]string{"plugin.toml": "plugin:\n  id: adi.hello\n  version: 1.0.0\n"})
	srv := artifactServer(t, archive)

	inst := New(root, registryclient.New(srv.URL))
	req := Request{
		PluginID:     "adi.hello",
		Version:      "1.0.0",
		ArchiveURL:   srv.URL,
		ExpectedSize: int64(len(archive)),
		Format:       "zip",
	}
	require.NoError(t, inst.Install(req, nil))
	require.NoError(t, inst.Install(req, nil))

	verFile, err := os.ReadFile(filepath.Join(root, "adi.hello", ".version"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", string(verFile))
}

func TestZipSlipRejected(t *testing.T) {
	root := t.TempDir()
	archive := zipArchive(t, map[string]string{"../escape": "nope"})
	srv := artifactServer(t, archive)

	inst := New(root, registryclient.New(srv.URL))
	err := inst.Install(Request{
		PluginID:     "adi.hello",
		Version:      "1.0.0",
		ArchiveURL:   srv.URL,
		ExpectedSize: int64(len(archive)),
		Format:       "zip",
	}, nil)
	assert.Error(t, err)
}

func TestUninstallIdempotent(t *testing.T) {
	root := t.TempDir()
	idx := commandindex.New(root)
	require.NoError(t, Uninstall(root, "adi.absent", idx))
}

func TestCurrentPlatformKey(t *testing.T) {
	assert.Contains(t, CurrentPlatformKey(), "-")
}
