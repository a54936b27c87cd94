// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package logbuffer implements a per-service bounded FIFO of captured
// output lines, guarded by its own reader-writer lock and never
// acquiring any other lock while held.
package logbuffer

import "sync"

// DefaultCapacity bounds each service's retained lines.
const DefaultCapacity = 10000

// Buffer holds one bounded FIFO per service name.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	services map[string][]string
	total    map[string]int // monotonic count of lines ever pushed, for Since
}

// New returns a Buffer with the given per-service capacity. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, services: make(map[string][]string), total: make(map[string]int)}
}

// Push appends line to service's buffer, dropping the oldest excess lines
// once length exceeds capacity.
func (b *Buffer) Push(service, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := append(b.services[service], line)
	if over := len(lines) - b.capacity; over > 0 {
		lines = append([]string{}, lines[over:]...)
	}
	b.services[service] = lines
	b.total[service]++
}

// Tail returns the last n lines for service in insertion order. Fewer are
// returned if less are stored; an unknown service yields an empty slice.
func (b *Buffer) Tail(service string, n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lines := b.services[service]
	if n <= 0 || len(lines) == 0 {
		return []string{}
	}
	if n > len(lines) {
		n = len(lines)
	}
	out := make([]string, n)
	copy(out, lines[len(lines)-n:])
	return out
}

// Total reports the monotonic count of lines ever pushed for service,
// usable as a cursor for Since.
func (b *Buffer) Total(service string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total[service]
}

// Since returns every line pushed after cursor (a value previously
// obtained from Total), used to poll a service's log for a follow
// stream. A cursor older than the buffer's retained history returns
// whatever is still available, which may skip lines dropped by
// capacity eviction.
func (b *Buffer) Since(service string, cursor int) ([]string, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lines := b.services[service]
	total := b.total[service]
	newCount := total - cursor
	if newCount <= 0 {
		return []string{}, total
	}
	if newCount > len(lines) {
		newCount = len(lines)
	}
	out := make([]string, newCount)
	copy(out, lines[len(lines)-newCount:])
	return out, total
}

// Clear drops all lines recorded for service.
func (b *Buffer) Clear(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, service)
}

// Len reports how many lines are currently stored for service.
func (b *Buffer) Len(service string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.services[service])
}
