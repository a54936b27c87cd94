// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package registryclient is a typed HTTP client for the plugin
// catalogue: listing, search, per-plugin info, glob matching, and
// artifact download. Remote 5xx responses and network errors are
// retried with bounded backoff; 4xx responses are not.
package registryclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
)

// PluginEntry is one row of a catalogue listing.
type PluginEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	LatestVersion string `json:"latest_version"`
}

// PackageEntry is a higher-level grouping a search result may surface
// alongside individual plugins (e.g. a bundle of related plugin IDs).
type PackageEntry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Plugins []string `json:"plugins"`
}

// SearchResult is the shape of a search(query) response.
type SearchResult struct {
	Packages []PackageEntry `json:"packages"`
	Plugins  []PluginEntry  `json:"plugins"`
}

// ArtifactInfo is one platform's downloadable artifact for a plugin
// version, mirrored from pkg/pluginapi.Artifact's wire shape.
type ArtifactInfo struct {
	ArchiveURL string `json:"archive_url"`
	SizeBytes  int64  `json:"size_bytes"`
	Signature  string `json:"signature"`
	Format     string `json:"format"`
}

// PluginInfo is the full registry record for a single plugin, including
// every version's per-platform artifacts.
type PluginInfo struct {
	ID            string                             `json:"id"`
	Name          string                             `json:"name"`
	Description   string                             `json:"description"`
	Versions      []string                           `json:"versions"`
	LatestVersion string                             `json:"latest_version"`
	Artifacts     map[string]map[string]ArtifactInfo `json:"artifacts"` // version -> os-arch -> artifact
	Dependencies  []string                           `json:"dependencies"`
	// PublicKey is a base64 ed25519 public key this plugin's artifacts
	// are signed with.
	PublicKey string `json:"public_key,omitempty"`
}

// Client is a typed HTTP client against a configurable registry base URL.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// New returns a Client targeting baseURL. The underlying retryablehttp
// client retries remote 5xx responses and network errors with bounded
// exponential backoff, and treats everything else (including 4xx) as
// non-retriable.
func New(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	return &Client{baseURL: baseURL, http: rc}
}

func (c *Client) endpoint(parts ...string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	for _, p := range parts {
		u.Path = u.Path + "/" + p
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, target string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return adierrors.New(adierrors.Programmer, err, "failed to build request for %s", target)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return adierrors.New(adierrors.Unavailable, err, "registry unreachable at %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return adierrors.New(adierrors.Transient, nil, "registry returned %d for %s", resp.StatusCode, target)
	}
	if resp.StatusCode == http.StatusNotFound {
		return adierrors.Sentinel(adierrors.NotFound)
	}
	if resp.StatusCode >= 400 {
		return adierrors.New(adierrors.Policy, nil, "registry returned %d for %s", resp.StatusCode, target)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return adierrors.New(adierrors.Integrity, err, "malformed registry response from %s", target)
	}
	return nil
}

// ListPlugins returns the full catalogue listing.
func (c *Client) ListPlugins(ctx context.Context) ([]PluginEntry, error) {
	var out []PluginEntry
	if err := c.getJSON(ctx, c.endpoint("v1", "plugins"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search queries the catalogue for plugins and packages matching query.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	var out SearchResult
	target := c.endpoint("v1", "search") + "?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, target, &out); err != nil {
		return SearchResult{}, err
	}
	return out, nil
}

// GetPluginInfo returns the full record for id, or nil if the registry
// has no such plugin. This is the one endpoint where a remote 404 is a
// miss rather than an error.
func (c *Client) GetPluginInfo(ctx context.Context, id string) (*PluginInfo, error) {
	var out PluginInfo
	target := c.endpoint("v1", "plugins", id)
	if err := c.getJSON(ctx, target, &out); err != nil {
		if adierrors.KindOf(err) == adierrors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// FindMatching resolves pattern against the full catalogue. pattern's
// only wildcard is `*`, matching any dotted segment(s).
func (c *Client) FindMatching(ctx context.Context, pattern string) ([]PluginEntry, error) {
	all, err := c.ListPlugins(ctx)
	if err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, adierrors.New(adierrors.Policy, err, "invalid match pattern %q", pattern)
	}
	var matched []PluginEntry
	for _, entry := range all {
		if g.Match(entry.ID) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// ProgressFunc is invoked as bytes arrive during a Download.
type ProgressFunc func(bytesDone, total int64)

// sizeSlack is the tolerated disagreement between a declared and an
// observed artifact size before a download fails as a size mismatch.
const sizeSlack = 0

// Download streams archiveURL's body to w, invoking progress as bytes
// arrive. If expectedSize is > 0, a final size disagreeing with it beyond
// sizeSlack fails with an Integrity error (the Archive Installer returns
// it unchanged).
func (c *Client) Download(ctx context.Context, archiveURL string, expectedSize int64, w io.Writer, progress ProgressFunc) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return adierrors.New(adierrors.Programmer, err, "failed to build download request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return adierrors.New(adierrors.Unavailable, err, "failed to reach %s", archiveURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return adierrors.New(adierrors.NotFound, nil, "artifact fetch returned %d for %s", resp.StatusCode, archiveURL)
	}

	total := expectedSize
	if total <= 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				total = n
			}
		}
	}

	var done int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return errors.Wrap(werr, "failed to write downloaded bytes")
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return adierrors.New(adierrors.Transient, readErr, "download interrupted")
		}
	}

	if expectedSize > 0 {
		diff := done - expectedSize
		if diff < 0 {
			diff = -diff
		}
		if diff > sizeSlack {
			return adierrors.New(adierrors.Integrity, nil, "downloaded %d bytes, expected %d", done, expectedSize)
		}
	}
	return nil
}

// VerifySHA256 checks data against an expected lowercase hex-encoded
// sha256 digest. The install path does not call it; artifact signatures
// are checked as detached ed25519 signatures.
func VerifySHA256(data []byte, expectedHex string) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != expectedHex {
		return adierrors.New(adierrors.Integrity, nil, "checksum mismatch: got %s, expected %s", got, expectedHex)
	}
	return nil
}

func (p PluginInfo) String() string {
	return fmt.Sprintf("%s (latest=%s, %d versions)", p.ID, p.LatestVersion, len(p.Versions))
}
