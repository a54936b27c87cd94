// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	sub, pos, opts := ParseArgs([]string{"install", "--version", "1.2.3", "--force", "foo"})
	assert.Equal(t, "install", sub)
	assert.Equal(t, []string{"foo"}, pos)
	assert.Equal(t, map[string]interface{}{"version": "1.2.3", "force": true}, opts)
}

func TestParseArgsEmpty(t *testing.T) {
	sub, pos, opts := ParseArgs(nil)
	assert.Empty(t, sub)
	assert.Empty(t, pos)
	assert.Empty(t, opts)
}

func TestParseArgsTrailingOptionIsBoolean(t *testing.T) {
	sub, pos, opts := ParseArgs([]string{"run", "--verbose"})
	assert.Equal(t, "run", sub)
	assert.Empty(t, pos)
	assert.Equal(t, map[string]interface{}{"verbose": true}, opts)
}

func TestParseArgsAdjacentOptions(t *testing.T) {
	// An option followed by another option stays boolean; the next
	// option still gets its value.
	sub, _, opts := ParseArgs([]string{"--dry-run", "--output", "json", "target"})
	assert.Equal(t, map[string]interface{}{"dry-run": true, "output": "json"}, opts)
	assert.Equal(t, "target", sub)
}

func TestParseArgsFinalTokenStaysPositional(t *testing.T) {
	// A bare token in final position is never consumed as an option
	// value.
	sub, pos, opts := ParseArgs([]string{"deploy", "--target", "prod"})
	assert.Equal(t, "deploy", sub)
	assert.Equal(t, []string{"prod"}, pos)
	assert.Equal(t, map[string]interface{}{"target": true}, opts)
}

func TestParseArgsOnlyPositionals(t *testing.T) {
	sub, pos, opts := ParseArgs([]string{"status", "web", "db"})
	assert.Equal(t, "status", sub)
	assert.Equal(t, []string{"web", "db"}, pos)
	assert.Empty(t, opts)
}
