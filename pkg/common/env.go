// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package common defines generic constants, environment variables, and
// default locations shared across adi's components.
package common

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Recognized configuration environment variables.
const (
	EnvConfigDir       = "ADI_CONFIG_DIR"
	EnvLang            = "ADI_LANG"
	EnvPowerUser       = "ADI_POWER_USER"
	EnvAutoInstall     = "ADI_AUTO_INSTALL"
	EnvRegistryURL     = "ADI_REGISTRY_URL"
	EnvDaemonSocket    = "ADI_DAEMON_SOCKET"
	EnvDaemonPID       = "ADI_DAEMON_PID"
	EnvDaemonLog       = "ADI_DAEMON_LOG"
	EnvDaemonTCPPort   = "ADI_DAEMON_TCP_PORT"
	DefaultLanguageTag = "en-US"
)

// EnvCliContext carries a plugin invocation's JSON-encoded CliContext to
// the plugin subprocess, alongside the conventional argv passed to it
// directly. Plugins that only read argv can ignore it.
const EnvCliContext = "ADI_CLI_CONTEXT"

// EnvCapabilityCall carries a JSON-encoded CapabilityCall when the
// runtime invokes a plugin's log-provider or MCP capability instead of
// its CLI entry point.
const EnvCapabilityCall = "ADI_CAPABILITY_CALL"

// EnvDaemonContext carries a JSON-encoded DaemonContext when the daemon
// spawns a plugin binary as a managed service.
const EnvDaemonContext = "ADI_DAEMON_CONTEXT"

// DefaultConfigDir is the base configuration directory used when
// ADI_CONFIG_DIR is unset. It mirrors the xdg-backed default a CLI/plugin
// control plane conventionally uses for its own state.
var DefaultConfigDir = filepath.Join(xdg.Home, ".config", "adi")

// ConfigDir resolves the effective configuration root.
func ConfigDir() string {
	if v := os.Getenv(EnvConfigDir); v != "" {
		return v
	}
	return DefaultConfigDir
}

// PluginsRoot resolves the plugins root directory, always nested under
// the configuration root.
func PluginsRoot() string {
	return filepath.Join(ConfigDir(), "plugins")
}

// CommandIndexDirName is the name of the Command Index directory nested
// directly under the plugins root.
const CommandIndexDirName = ".commands"

// CommandIndexDir returns the absolute path of the Command Index directory.
func CommandIndexDir() string {
	return filepath.Join(PluginsRoot(), CommandIndexDirName)
}

// DaemonSocketPath resolves the IPC socket path, honoring ADI_DAEMON_SOCKET.
func DaemonSocketPath() string {
	if v := os.Getenv(EnvDaemonSocket); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "daemon.sock")
}

// DaemonPIDPath resolves the daemon's PID file path.
func DaemonPIDPath() string {
	if v := os.Getenv(EnvDaemonPID); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "daemon.pid")
}

// DaemonLogPath resolves the daemon's structured access-log path.
func DaemonLogPath() string {
	if v := os.Getenv(EnvDaemonLog); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "daemon.log")
}

// DaemonTCPPort returns the configured loopback TCP port override, and
// whether one was set. Non-POSIX platforms use this instead of a
// unix-domain socket.
func DaemonTCPPort() (string, bool) {
	v := os.Getenv(EnvDaemonTCPPort)
	return v, v != ""
}

// RegistryURL resolves the registry base URL, falling back to the public
// default when ADI_REGISTRY_URL is unset.
func RegistryURL() string {
	if v := os.Getenv(EnvRegistryURL); v != "" {
		return v
	}
	return "https://registry.adi.dev"
}

// ParseBool parses a superset of strconv.ParseBool accepting the values
// the CLI's boolean env vars are documented to accept:
// true/false/1/0/yes/no/on/off. An unrecognized or empty
// value returns def unchanged.
func ParseBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// PowerUserMode reports whether ADI_POWER_USER enables verbose/extra
// features.
func PowerUserMode() bool {
	return ParseBool(os.Getenv(EnvPowerUser), false)
}

// AutoInstallEnabled reports whether the interactive auto-install prompt is
// enabled. Default is enabled; ADI_AUTO_INSTALL disables it when false-ish.
func AutoInstallEnabled() bool {
	return ParseBool(os.Getenv(EnvAutoInstall), true)
}

// LanguageTag resolves ADI_LANG, falling back to the provided saved
// preference, then $LANG, then the default tag.
func LanguageTag(saved string) string {
	if v := os.Getenv(EnvLang); v != "" {
		return v
	}
	if saved != "" {
		return saved
	}
	if v := os.Getenv("LANG"); v != "" {
		// $LANG is usually of the form "en_US.UTF-8"; normalize the
		// territory separator, strip the encoding suffix.
		v = strings.SplitN(v, ".", 2)[0]
		v = strings.ReplaceAll(v, "_", "-")
		if v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return DefaultLanguageTag
}
