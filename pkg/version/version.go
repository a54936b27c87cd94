// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package version implements the plugin version ordering rule:
// component-wise comparison of dot-separated unsigned integers, where a
// longer prefix-equal version is greater.
package version

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
)

// components splits a version string into its dot-separated integer
// components. Non-numeric components are treated as zero rather than
// rejecting malformed versions outright.
func components(v string) []uint64 {
	parts := strings.Split(v, ".")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b, comparing component-wise left to right. A longer prefix-equal
// version is greater (e.g. "1.2.0.1" > "1.2.0").
func Compare(a, b string) int {
	ca, cb := components(a), components(b)
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		switch {
		case ca[i] < cb[i]:
			return -1
		case ca[i] > cb[i]:
			return 1
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	default:
		return 0
	}
}

// IsNewer reports whether candidate is strictly newer than existing. It
// forms a strict total order: never newer than itself, and exactly one
// direction holds between two distinct versions.
func IsNewer(candidate, existing string) bool {
	return Compare(candidate, existing) > 0
}

// SortAscending sorts version strings in ascending order, using the same
// component-wise comparator as IsNewer, so the resulting order agrees
// with install/update decisions.
func SortAscending(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}

// IsSemverShaped reports whether v parses as a valid semantic version.
// Used only for manifest validation; ordering decisions always go
// through Compare/IsNewer above, not semver.Version.Compare, so that
// pre-release/build metadata never changes an install-vs-skip decision.
func IsSemverShaped(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}
