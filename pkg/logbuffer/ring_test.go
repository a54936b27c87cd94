// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package logbuffer

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailReturnsInsertionOrder(t *testing.T) {
	b := New(10)
	b.Push("web", "one")
	b.Push("web", "two")
	b.Push("web", "three")

	assert.Equal(t, []string{"two", "three"}, b.Tail("web", 2))
	assert.Equal(t, []string{"one", "two", "three"}, b.Tail("web", 10))
}

func TestTailUnknownServiceIsEmpty(t *testing.T) {
	b := New(10)
	assert.Equal(t, []string{}, b.Tail("nope", 5))
}

func TestPushDropsOldestBeyondCapacity(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Push("web", strconv.Itoa(i))
	}
	assert.Equal(t, []string{"2", "3", "4"}, b.Tail("web", 10))
	assert.Equal(t, 3, b.Len("web"))
	assert.Equal(t, 5, b.Total("web"))
}

func TestSinceReturnsOnlyNewLines(t *testing.T) {
	b := New(10)
	b.Push("web", "one")
	cursor := b.Total("web")

	b.Push("web", "two")
	b.Push("web", "three")

	fresh, newCursor := b.Since("web", cursor)
	assert.Equal(t, []string{"two", "three"}, fresh)
	assert.Equal(t, 3, newCursor)

	fresh, _ = b.Since("web", newCursor)
	assert.Equal(t, []string{}, fresh)
}

func TestSinceCursorOlderThanRetainedHistory(t *testing.T) {
	b := New(2)
	for i := 0; i < 4; i++ {
		b.Push("web", strconv.Itoa(i))
	}
	// cursor 0 is older than anything still retained (capacity 2 evicted
	// the first two pushes); Since must not panic and must return
	// whatever is still available.
	fresh, total := b.Since("web", 0)
	assert.Equal(t, []string{"2", "3"}, fresh)
	assert.Equal(t, 4, total)
}

func TestClear(t *testing.T) {
	b := New(10)
	b.Push("web", "one")
	b.Clear("web")
	assert.Equal(t, 0, b.Len("web"))
}
