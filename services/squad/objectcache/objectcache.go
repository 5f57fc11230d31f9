// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package objectcache provides the object-cache services that the cache
// package delegates to.
//
// A Backend stores arbitrary values by (group, key) with an optional TTL.
// Two backends exist:
//
//   - Memory: a process-local map. This is the non-persistent default; its
//     contents die with the process.
//   - Badger: entries live in BadgerDB with native TTL. It reports
//     Persistent() so callers can tell an external object cache is in use.
//
// Backends do not sanitize keys; that is the cache package's job.
package objectcache

import (
	"context"
	"sync"
	"time"
)

// Backend is the object-cache service contract.
type Backend interface {
	// Get returns the cached value and whether it was found. force asks
	// persistent backends to bypass any local copy.
	Get(ctx context.Context, key, group string, force bool) (any, bool, error)

	// Set stores value. ttl <= 0 means no expiry. The bool reports whether
	// the backend accepted the write.
	Set(ctx context.Context, key, group string, value any, ttl time.Duration) (bool, error)

	// Delete removes the entry and reports whether it existed.
	Delete(ctx context.Context, key, group string) (bool, error)

	// Persistent reports whether entries outlive the process.
	Persistent() bool
}

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Backend with lazy expiry.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	groups map[string]map[string]memoryEntry
	now    func() time.Time
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]map[string]memoryEntry),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests to drive expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key, group string, _ bool) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.groups[group]
	if !ok {
		return nil, false, nil
	}
	entry, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(m.now()) {
		delete(entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Backend.
func (m *Memory) Set(ctx context.Context, key, group string, value any, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.groups[group]
	if !ok {
		entries = make(map[string]memoryEntry)
		m.groups[group] = entries
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	entries[key] = entry
	return true, nil
}

// Delete implements Backend.
func (m *Memory) Delete(ctx context.Context, key, group string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.groups[group]
	if !ok {
		return false, nil
	}
	entry, ok := entries[key]
	if !ok {
		return false, nil
	}
	delete(entries, key)
	return !entry.expired(m.now()), nil
}

// Persistent implements Backend. Memory entries die with the process.
func (m *Memory) Persistent() bool { return false }

// Flush drops every entry in every group.
func (m *Memory) Flush() {
	m.mu.Lock()
	m.groups = make(map[string]map[string]memoryEntry)
	m.mu.Unlock()
}
