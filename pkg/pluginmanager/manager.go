// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pluginmanager is the high-level install/uninstall/update
// surface layered over the registry client, the archive installer, and
// the command index.
package pluginmanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aunum/log"
	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/commandindex"
	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/installer"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
	"github.com/adi-family/adi-cli/pkg/pluginlayout"
	"github.com/adi-family/adi-cli/pkg/registryclient"
	"github.com/adi-family/adi-cli/pkg/sigverify"
	"github.com/adi-family/adi-cli/pkg/version"
)

// Manager is the high-level plugin lifecycle surface.
type Manager struct {
	pluginsRoot string
	registry    *registryclient.Client
	installer   *installer.Installer
	index       *commandindex.Index
	trustedKeys sigverify.TrustedKeys
}

// New returns a Manager rooted at pluginsRoot, using registry as its
// catalogue source. trustedKeys may be nil (no locally pinned keys; every
// registry-supplied public key is trusted on first use).
func New(pluginsRoot string, registry *registryclient.Client, trustedKeys sigverify.TrustedKeys) *Manager {
	return &Manager{
		pluginsRoot: pluginsRoot,
		registry:    registry,
		installer:   installer.New(pluginsRoot, registry),
		index:       commandindex.New(pluginsRoot),
		trustedKeys: trustedKeys,
	}
}

// IsInstalled reports whether id currently resolves to an installed
// layout.
func (m *Manager) IsInstalled(id string) bool {
	_, err := pluginlayout.Resolve(m.pluginsRoot, id)
	return err == nil
}

// Install installs id at version (the registry's latest if version is
// empty). A no-op if already installed.
func (m *Manager) Install(ctx context.Context, id, ver string, progress registryclient.ProgressFunc) error {
	if m.IsInstalled(id) {
		return nil
	}
	return m.installVersion(ctx, id, ver, progress)
}

// installVersion fetches, verifies, and installs one version without the
// already-installed short-circuit, so Update can flip an existing
// installation to a newer version.
func (m *Manager) installVersion(ctx context.Context, id, ver string, progress registryclient.ProgressFunc) error {
	info, err := m.registry.GetPluginInfo(ctx, id)
	if err != nil {
		return err
	}
	if info == nil {
		return adierrors.New(adierrors.NotFound, nil, "plugin %q not found in registry", id)
	}
	if ver == "" {
		ver = info.LatestVersion
	}

	platforms, ok := info.Artifacts[ver]
	if !ok {
		return adierrors.New(adierrors.NotFound, nil, "plugin %q has no artifacts for version %q", id, ver)
	}
	platformKey := installer.CurrentPlatformKey()
	artifact, ok := platforms[platformKey]
	if !ok {
		return adierrors.New(adierrors.NotFound, nil, "plugin %q@%s declares no artifact for platform %q", id, ver, platformKey)
	}

	publicKey, err := m.trustedKeys.ResolvePublicKey(id, info.PublicKey)
	if err != nil {
		return err
	}

	req := installer.Request{
		PluginID:     id,
		Version:      ver,
		ArchiveURL:   artifact.ArchiveURL,
		ExpectedSize: artifact.SizeBytes,
		Format:       artifact.Format,
		BinaryName:   id,
		Signature:    artifact.Signature,
		PublicKey:    publicKey,
	}
	if err := m.installer.Install(req, progress); err != nil {
		return err
	}

	if err := m.ensureManifest(id, ver, info); err != nil {
		return err
	}

	if err := m.index.Rebuild(); err != nil {
		log.Errorf("command index rebuild after installing %q failed: %v", id, err)
	}
	return nil
}

// ensureManifest writes a minimal manifest into the freshly installed
// version directory when the artifact itself carried none (raw-binary
// artifacts are just the executable). Layout resolution and dependency
// walking both require every version directory to hold a manifest.
func (m *Manager) ensureManifest(id, ver string, info *registryclient.PluginInfo) error {
	path := filepath.Join(m.pluginsRoot, id, ver, pluginapi.ManifestFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	manifest := &pluginapi.Manifest{
		Plugin: pluginapi.PluginMeta{
			ID:          id,
			Version:     ver,
			Name:        info.Name,
			Description: info.Description,
		},
		Dependencies: info.Dependencies,
	}
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write manifest for %q", id)
	}
	return nil
}

// InstallWithDependencies installs id then walks its manifest's
// dependencies transitively. A dependency cycle is broken by silently
// skipping an ID already being installed on this call stack.
func (m *Manager) InstallWithDependencies(ctx context.Context, id, ver string, progress registryclient.ProgressFunc) error {
	return m.installWithDeps(ctx, id, ver, progress, make(map[string]bool))
}

func (m *Manager) installWithDeps(ctx context.Context, id, ver string, progress registryclient.ProgressFunc, inProgress map[string]bool) error {
	if inProgress[id] {
		return nil
	}
	inProgress[id] = true

	if err := m.Install(ctx, id, ver, progress); err != nil {
		return err
	}

	manifest, _, err := pluginlayout.LoadManifest(m.pluginsRoot, id)
	if err != nil {
		return errors.Wrapf(err, "failed to load manifest for %q after install", id)
	}
	for _, dep := range manifest.Dependencies {
		if err := m.installWithDeps(ctx, dep, "", progress, inProgress); err != nil {
			return errors.Wrapf(err, "failed to install dependency %q of %q", dep, id)
		}
	}
	return nil
}

// InstallMatchResult is one plugin's outcome from InstallMatching.
type InstallMatchResult struct {
	PluginID string
	Err      error
}

// InstallMatching resolves pattern: with no wildcard it is equivalent to
// InstallWithDependencies; otherwise every registry entry matching
// pattern is installed with its dependencies, with per-plugin failures
// collected rather than aborting the batch.
func (m *Manager) InstallMatching(ctx context.Context, pattern, ver string, progress registryclient.ProgressFunc) ([]InstallMatchResult, error) {
	if !hasWildcard(pattern) {
		err := m.InstallWithDependencies(ctx, pattern, ver, progress)
		return []InstallMatchResult{{PluginID: pattern, Err: err}}, nil
	}

	matches, err := m.registry.FindMatching(ctx, pattern)
	if err != nil {
		return nil, err
	}

	results := make([]InstallMatchResult, 0, len(matches))
	for _, entry := range matches {
		err := m.InstallWithDependencies(ctx, entry.ID, ver, progress)
		results = append(results, InstallMatchResult{PluginID: entry.ID, Err: err})
	}
	return results, nil
}

func hasWildcard(pattern string) bool {
	for _, r := range pattern {
		if r == '*' {
			return true
		}
	}
	return false
}

// Uninstall removes id's installed directory tree and rebuilds the
// Command Index. Idempotent.
func (m *Manager) Uninstall(id string) error {
	return installer.Uninstall(m.pluginsRoot, id, m.index)
}

// Update compares id's installed version against the registry's latest
// using the strict version ordering from pkg/version, installing the
// newer version if one exists.
func (m *Manager) Update(ctx context.Context, id string, progress registryclient.ProgressFunc) error {
	loc, err := pluginlayout.Resolve(m.pluginsRoot, id)
	if err != nil {
		return err
	}

	info, err := m.registry.GetPluginInfo(ctx, id)
	if err != nil {
		return err
	}
	if info == nil {
		return adierrors.New(adierrors.NotFound, nil, "plugin %q not found in registry", id)
	}

	if !version.IsNewer(info.LatestVersion, loc.Version) {
		return nil
	}
	return m.installVersion(ctx, id, info.LatestVersion, progress)
}

// UpdateAllResult is one plugin's outcome from UpdateAll.
type UpdateAllResult struct {
	PluginID string
	Err      error
}

// UpdateAll updates every installed plugin, logging and continuing past
// per-plugin failures.
func (m *Manager) UpdateAll(ctx context.Context, progress registryclient.ProgressFunc) ([]UpdateAllResult, error) {
	ids, err := pluginlayout.ListInstalledPluginIDs(m.pluginsRoot, common.CommandIndexDirName)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateAllResult, 0, len(ids))
	for _, id := range ids {
		err := m.Update(ctx, id, progress)
		if err != nil {
			log.Errorf("failed to update %q: %v", id, err)
		}
		results = append(results, UpdateAllResult{PluginID: id, Err: err})
	}
	return results, nil
}

// LoadManifest returns the installed manifest for id, a thin
// pass-through used by the frontend and the Plugin Runtime.
func (m *Manager) LoadManifest(id string) (*pluginapi.Manifest, error) {
	manifest, _, err := pluginlayout.LoadManifest(m.pluginsRoot, id)
	return manifest, err
}

func (r InstallMatchResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.PluginID, r.Err)
	}
	return fmt.Sprintf("%s: installed", r.PluginID)
}
