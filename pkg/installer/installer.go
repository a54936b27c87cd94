// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package installer installs one resolved plugin version into the
// content-addressed on-disk layout: download into a staging directory,
// verify, extract into the version directory, then atomically publish
// the .version pointer and latest link as the final steps.
package installer

import (
	"archive/zip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/otiai10/copy"
	"github.com/pkg/errors"
	"github.com/verybluebot/tarinator-go"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/commandindex"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
	"github.com/adi-family/adi-cli/pkg/registryclient"
	"github.com/adi-family/adi-cli/pkg/sigverify"
)

// Request describes one plugin version to install.
type Request struct {
	PluginID     string
	Version      string
	ArchiveURL   string
	ExpectedSize int64
	Format       string // tar.gz | zip | raw-binary
	BinaryName   string
	// Signature and PublicKey, if both non-empty, are verified against
	// the downloaded artifact bytes before extraction.
	Signature string
	PublicKey string
}

// Installer installs plugin versions into pluginsRoot using registry as
// the download source.
type Installer struct {
	pluginsRoot string
	registry    *registryclient.Client
}

// New returns an Installer rooted at pluginsRoot.
func New(pluginsRoot string, registry *registryclient.Client) *Installer {
	return &Installer{pluginsRoot: pluginsRoot, registry: registry}
}

// CurrentPlatformKey is the os-arch key this process runs under, used to
// select a manifest's matching platform artifact.
func CurrentPlatformKey() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// SelectArtifact returns the artifact matching the current platform, or
// an error if the manifest declares none.
func SelectArtifact(m *pluginapi.Manifest) (pluginapi.Artifact, error) {
	key := CurrentPlatformKey()
	a, ok := m.Platforms[key]
	if !ok {
		return pluginapi.Artifact{}, adierrors.New(adierrors.NotFound, nil, "plugin %q declares no artifact for platform %q", m.Plugin.ID, key)
	}
	return a, nil
}

// Install downloads, verifies, extracts, and publishes one version. A
// failure before the .version write leaves the prior installation
// untouched; a failure at or after it is recoverable by re-invoking with
// the same Request.
func (inst *Installer) Install(req Request, progress registryclient.ProgressFunc) error {
	pluginDir := filepath.Join(inst.pluginsRoot, req.PluginID)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create plugin directory")
	}

	staging, err := newStagingDir(pluginDir)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	downloadPath := filepath.Join(staging, "download")
	if err := inst.stream(req, downloadPath, progress); err != nil {
		return err
	}

	if req.Signature != "" && req.PublicKey != "" {
		data, err := os.ReadFile(downloadPath)
		if err != nil {
			return errors.Wrap(err, "failed to read downloaded artifact for signature verification")
		}
		if err := sigverify.VerifyArtifact(data, req.Signature, req.PublicKey); err != nil {
			return err
		}
	}

	versionDir := filepath.Join(pluginDir, req.Version)
	if err := os.RemoveAll(versionDir); err != nil {
		return errors.Wrap(err, "failed to clear prior partial version directory")
	}
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create version directory")
	}

	if err := extract(req, downloadPath, versionDir); err != nil {
		return err
	}

	if err := chmodExecutables(versionDir); err != nil {
		return err
	}

	if err := writeVersionPointer(pluginDir, req.Version); err != nil {
		return err
	}
	if err := replaceLatestLink(pluginDir, req.Version); err != nil {
		return err
	}

	return nil
}

func newStagingDir(pluginDir string) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", errors.Wrap(err, "failed to generate staging suffix")
	}
	staging := filepath.Join(pluginDir, ".staging-"+hex.EncodeToString(suffix[:]))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create staging directory")
	}
	return staging, nil
}

func (inst *Installer) stream(req Request, downloadPath string, progress registryclient.ProgressFunc) error {
	f, err := os.Create(downloadPath)
	if err != nil {
		return errors.Wrap(err, "failed to create staging download file")
	}
	defer f.Close()

	if err := inst.registry.Download(context.Background(), req.ArchiveURL, req.ExpectedSize, f, progress); err != nil {
		return err
	}
	return nil
}

// extract dispatches on req.Format. tar.gz archives tolerate a top-level
// directory or its absence: tarinator.UnTarinate extracts flat into dest,
// so any wrapper directory is simply another entry under dest; callers
// locate the binary by filename equality rather than assuming a fixed
// depth.
func extract(req Request, downloadPath, versionDir string) error {
	switch req.Format {
	case "tar.gz":
		if err := tarinator.UnTarinate(versionDir, downloadPath); err != nil {
			return adierrors.New(adierrors.Integrity, err, "failed to extract tar.gz archive for %s", req.PluginID)
		}
	case "zip":
		if err := extractZip(downloadPath, versionDir); err != nil {
			return adierrors.New(adierrors.Integrity, err, "failed to extract zip archive for %s", req.PluginID)
		}
	case "raw-binary":
		binName := req.BinaryName
		if binName == "" {
			binName = req.PluginID
		}
		if runtime.GOOS == "windows" {
			binName += ".exe"
		}
		if err := copy.Copy(downloadPath, filepath.Join(versionDir, binName)); err != nil {
			return errors.Wrap(err, "failed to place raw binary")
		}
	default:
		return adierrors.New(adierrors.Policy, nil, "unsupported artifact format %q", req.Format)
	}
	return nil
}

func chmodExecutables(versionDir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return filepath.Walk(versionDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.Name() == pluginapi.ManifestFileName {
			return nil
		}
		return os.Chmod(path, 0o755)
	})
}

func writeVersionPointer(pluginDir, version string) error {
	tmp := filepath.Join(pluginDir, ".version.tmp")
	if err := os.WriteFile(tmp, []byte(version), 0o644); err != nil {
		return errors.Wrap(err, "failed to write staged version pointer")
	}
	target := filepath.Join(pluginDir, ".version")
	if err := os.Rename(tmp, target); err != nil {
		return errors.Wrap(err, "failed to commit version pointer")
	}
	return nil
}

func replaceLatestLink(pluginDir, version string) error {
	link := filepath.Join(pluginDir, "latest")
	tmp := filepath.Join(pluginDir, ".latest.tmp")
	_ = os.Remove(tmp)
	if err := os.Symlink(version, tmp); err != nil {
		return errors.Wrap(err, "failed to stage latest link")
	}
	if err := os.Rename(tmp, link); err != nil {
		return errors.Wrap(err, "failed to commit latest link")
	}
	return nil
}

// Uninstall removes a plugin's entire directory tree and rebuilds the
// command index. Idempotent: removing an already-absent directory is not
// an error.
func Uninstall(pluginsRoot, pluginID string, idx *commandindex.Index) error {
	pluginDir := filepath.Join(pluginsRoot, pluginID)
	if err := os.RemoveAll(pluginDir); err != nil {
		return errors.Wrapf(err, "failed to remove plugin directory %s", pluginDir)
	}
	return idx.Rebuild()
}

func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if !isWithinDir(dest, target) {
			return errors.Errorf("zip entry %q escapes destination directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasDotDotPrefix(rel)
}

func filepathHasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
