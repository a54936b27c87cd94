// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
plugin:
  id: adi.hello
  version: 1.0.0
  name: Hello
  description: Says hello
  author: adi
  category: demo
cli:
  command: hello
  description: Say hello
  aliases: [hi, greet]
daemon:
  service:
    name: hello-svc
    command: ./hello-svc serve
    auto_start: true
    restart_on_failure: true
    max_restarts: 3
log_provider:
  services: [hello-svc]
mcp:
  tools: true
  resources: true
dependencies:
  - adi.base
platforms:
  linux-amd64:
    archive_url: https://example.com/hello-linux-amd64.tar.gz
    size_bytes: 1024
    signature: c2ln
    format: tar.gz
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "adi.hello", m.Plugin.ID)
	assert.Equal(t, "1.0.0", m.Plugin.Version)
	require.NotNil(t, m.CLI)
	assert.Equal(t, "hello", m.CLI.Command)
	assert.Equal(t, []string{"hi", "greet"}, m.CLI.Aliases)
	require.NotNil(t, m.Daemon)
	assert.Equal(t, "hello-svc", m.Daemon.Service.Name)
	assert.True(t, m.Daemon.Service.AutoStart)
	assert.Equal(t, 3, m.Daemon.Service.MaxRestarts)
	require.NotNil(t, m.LogProvider)
	assert.Equal(t, []string{"hello-svc"}, m.LogProvider.Services)
	require.NotNil(t, m.MCP)
	assert.True(t, m.MCP.Tools)
	assert.True(t, m.MCP.Resources)
	assert.Equal(t, []string{"adi.base"}, m.Dependencies)
	assert.Equal(t, int64(1024), m.Platforms["linux-amd64"].SizeBytes)
}

func TestParseManifestMalformed(t *testing.T) {
	_, err := ParseManifest([]byte("{not yaml"))
	assert.Error(t, err)
}

func TestCommandNames(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hi", "greet"}, m.CommandNames())

	m.CLI = nil
	assert.Nil(t, m.CommandNames())
}

func TestValidate(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.NoError(t, m.Validate("adi.hello"))
	assert.Error(t, m.Validate("adi.other"))

	m.Plugin.Version = "not-a-version"
	assert.Error(t, m.Validate("adi.hello"))
}

func TestManifestRoundTrip(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	data, err := m.Marshal()
	require.NoError(t, err)

	back, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}
