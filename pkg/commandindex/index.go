// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package commandindex maintains a persisted reverse map from a
// user-typed command name (and each alias) to the manifest path that
// declared it, backed by a flat directory of tiny files. It exists
// because a full scan of every plugin directory is the dominant cost of
// a CLI invocation.
//
// Rebuilds take a lockedfile lock and write each entry through a
// temp-file-then-rename, so a rebuild racing with a reader never exposes
// a half-written entry.
package commandindex

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/pluginapi"
	"github.com/adi-family/adi-cli/pkg/pluginlayout"
)

// Index operates against a single plugins root.
type Index struct {
	pluginsRoot string
}

// New returns an Index rooted at pluginsRoot.
func New(pluginsRoot string) *Index {
	return &Index{pluginsRoot: pluginsRoot}
}

func (idx *Index) dir() string {
	return filepath.Join(idx.pluginsRoot, common.CommandIndexDirName)
}

func (idx *Index) entryPath(name string) string {
	return filepath.Join(idx.dir(), name)
}

// Entry is one resolved index record.
type Entry struct {
	Name         string
	ManifestPath string
}

// Resolve reads <plugins-root>/.commands/<name>; returns its content if the
// pointed-to manifest still parses and still declares name. Stale entries
// (manifest gone, or no longer declaring this name) are treated as a
// miss, never surfaced as an error, so correctness never depends on the
// index being fresh.
func (idx *Index) Resolve(name string) (string, bool) {
	data, err := os.ReadFile(idx.entryPath(name))
	if err != nil {
		return "", false
	}
	manifestPath := string(data)

	m, err := readManifest(manifestPath)
	if err != nil {
		return "", false
	}
	for _, n := range m.CommandNames() {
		if n == name {
			return manifestPath, true
		}
	}
	return "", false
}

// ListAll enumerates every index entry. Entries pointing at the same
// manifest are not deduplicated here: one manifest declares one command
// with several aliases, and callers may want each alias as a distinct
// row or collapsed.
func (idx *Index) ListAll() ([]Entry, error) {
	entries, err := os.ReadDir(idx.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list command index")
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		// Dot-prefixed names are index bookkeeping (the rebuild lock,
		// staged temp entries), never user-typable commands.
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(idx.dir(), e.Name()))
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), ManifestPath: string(data)})
	}
	return out, nil
}

// Rebuild performs a full directory scan of the plugins root, parses each
// manifest's cli block, and writes one index file per declared command and
// alias. It is atomic per index entry (temp file + rename); a rebuild may
// run concurrently with reads, which tolerate missing files by falling
// back to the caller's own full scan.
//
// Rebuild first computes the complete desired entry set, then reconciles
// the on-disk directory against it (writing new/changed entries, removing
// entries no longer declared by any manifest) so that re-running Rebuild
// from scratch always converges to a file-for-file identical result.
func (idx *Index) Rebuild() error {
	if err := os.MkdirAll(idx.dir(), 0o755); err != nil {
		return errors.Wrap(err, "failed to create command index directory")
	}

	lock, err := lockedfile.Create(idx.lockPath())
	if err != nil {
		return errors.Wrap(err, "failed to lock command index for rebuild")
	}
	defer lock.Close()

	ids, err := pluginlayout.ListInstalledPluginIDs(idx.pluginsRoot, common.CommandIndexDirName)
	if err != nil {
		return err
	}

	desired := make(map[string]string) // name -> manifest path
	for _, id := range ids {
		m, loc, err := pluginlayout.LoadManifest(idx.pluginsRoot, id)
		if err != nil {
			// A load failure for one plugin must not abort the rebuild
			// of the rest.
			continue
		}
		for _, name := range m.CommandNames() {
			desired[name] = loc.ManifestPath
		}
	}

	existing, _ := os.ReadDir(idx.dir())
	existingNames := make(map[string]bool, len(existing))
	for _, e := range existing {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		existingNames[e.Name()] = true
	}

	for name, manifestPath := range desired {
		if err := idx.writeEntryAtomic(name, manifestPath); err != nil {
			return err
		}
		delete(existingNames, name)
	}
	// Anything left in existingNames is stale: no manifest declares it
	// anymore.
	for name := range existingNames {
		_ = os.Remove(idx.entryPath(name))
	}

	return nil
}

func (idx *Index) lockPath() string {
	return filepath.Join(idx.dir(), ".rebuild.lock")
}

func (idx *Index) writeEntryAtomic(name, manifestPath string) error {
	tmp := filepath.Join(idx.dir(), tempEntryName(name))
	if err := os.WriteFile(tmp, []byte(manifestPath), 0o644); err != nil {
		return errors.Wrapf(err, "failed to stage command index entry %q", name)
	}
	if err := os.Rename(tmp, idx.entryPath(name)); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to publish command index entry %q", name)
	}
	return nil
}

func tempEntryName(name string) string {
	return ".tmp-" + name + "-" + uuid.NewString()
}

// IsStale reports whether the index needs a rebuild: it compares the
// modification time of the index directory against the latest
// modification time of any entry under the plugins root (excluding the
// index directory itself). Used by completion regeneration to decide
// whether to trigger a Rebuild before serving suggestions.
func (idx *Index) IsStale() (bool, error) {
	indexInfo, err := os.Stat(idx.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(err, "failed to stat command index directory")
	}

	var latest time.Time
	entries, err := os.ReadDir(idx.pluginsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to read plugins root")
	}
	for _, e := range entries {
		if e.Name() == common.CommandIndexDirName {
			continue
		}
		latest = latestModTime(filepath.Join(idx.pluginsRoot, e.Name()), latest)
	}

	return latest.After(indexInfo.ModTime()), nil
}

func latestModTime(path string, acc time.Time) time.Time {
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort staleness probe
		}
		if info.ModTime().After(acc) {
			acc = info.ModTime()
		}
		return nil
	})
	return acc
}

func readManifest(manifestPath string) (*pluginapi.Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	return pluginapi.ParseManifest(data)
}
