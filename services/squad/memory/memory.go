// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory provides Memory, the persisted settings document.
//
// The document is a single map of JSON values stored under one option name
// (<prefix>-settings). It is loaded lazily on first access, read through a
// cache slot, mutated in memory and written back only when something
// actually changed.
//
// # Lifecycle
//
//	first access ──► cache slot ──miss──► option store
//	       │                                   │
//	       └──────────── document ◄────────────┘
//	                        │
//	          legacy migration (once, flagged)
//	                        │
//	     Get / Set / Delete / arrays (dirty flag)
//	                        │
//	            Sync at end of request (if dirty)
//
// A load failure leaves an empty document. A migration failure is recorded
// in the document itself. A sync failure keeps the dirty flag so a later
// Sync retries.
//
// # Thread Safety
//
// Memory is safe for concurrent use. Hooks run outside the internal lock.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/SquadModules/pkg/hooks"
	"github.com/AleutianAI/SquadModules/services/squad/cache"
	"github.com/AleutianAI/SquadModules/services/squad/options"
)

// DefaultPrefix namespaces the option name and cache group.
const DefaultPrefix = "divi-squad"

// Reserved document keys written by the migration step.
const (
	KeyMigrationCompleted   = "migration_completed"
	KeyMigrationCompletedAt = "migration_completed_at"
	KeyMigrationLog         = "migration_log"
	KeyMigrationErrors      = "migration_errors"
)

// ErrNotList is returned by the array helpers when the existing value is
// not a list.
var ErrNotList = errors.New("value is not a list")

// ErrNotLoaded is returned by Sync while the stored document cannot be
// read. Writing then would replace settings that were never seen.
var ErrNotLoaded = errors.New("settings not loaded")

// Lookup is passed through the Value filter on every Get.
type Lookup struct {
	Key   string
	Value any
	Found bool
}

// Change describes one mutation of the document.
type Change struct {
	Key     string
	Old     any
	New     any
	Deleted bool
}

// Hooks are the extension points of a Memory.
type Hooks struct {
	// Value may replace the value returned by Get.
	Value hooks.Filter[Lookup]

	// Changed fires after each key that actually changed.
	Changed hooks.Action[Change]

	// Synced fires with a copy of the document after a successful flush.
	Synced hooks.Action[map[string]any]
}

// Option configures a Memory.
type Option func(*Memory)

// WithPrefix sets the namespace prefix.
func WithPrefix(prefix string) Option {
	return func(m *Memory) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// WithCache enables the read-through cache slot.
func WithCache(c *cache.Cache) Option {
	return func(m *Memory) { m.cache = c }
}

// WithLegacyKeys sets the option names migrated into the document on the
// first load.
func WithLegacyKeys(keys ...string) Option {
	return func(m *Memory) { m.legacyKeys = append([]string(nil), keys...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the time source used for migration timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// Memory is the settings document.
type Memory struct {
	Hooks Hooks

	prefix     string
	legacyKeys []string
	store      options.Store
	cache      *cache.Cache
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	data     map[string]any
	loaded   bool
	modified bool
	loadErr  error
}

// New creates a Memory over store. Nothing is read until first access.
func New(store options.Store, opts ...Option) *Memory {
	m := &Memory{
		prefix: DefaultPrefix,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		data:   map[string]any{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKey returns the option name the document is stored under.
func (m *Memory) OptionKey() string { return m.prefix + "-settings" }

// CacheGroup returns the cache group of the document's cache slot.
func (m *Memory) CacheGroup() string { return m.prefix + "-memory" }

// =============================================================================
// Loading
// =============================================================================

// Load reads the document now instead of on first access.
//
// Description:
//
//	Subsequent calls are no-ops. The returned error is informational: the
//	document is usable (empty) even when loading failed. After a failure
//	the legacy migration is skipped and the store is left untouched until
//	a Sync can read it again, or ClearAll discards it.
//
// Outputs:
//
//	error - The load failure, if any.
func (m *Memory) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	return m.loadErr
}

// ensureLoaded must be called with mu held.
func (m *Memory) ensureLoaded(ctx context.Context) {
	if m.loaded {
		return
	}
	m.loaded = true

	doc, err := m.read(ctx)
	if err != nil {
		m.loadErr = err
		m.logger.Error("settings load failed, using empty document",
			slog.String("option", m.OptionKey()),
			slog.String("error", err.Error()),
		)
		m.data = map[string]any{}
		return
	}
	m.data = doc

	m.migrate(ctx)

	if m.cache != nil {
		m.cache.Set(ctx, m.OptionKey(), clone(m.data), m.CacheGroup(), 0)
	}
}

func (m *Memory) read(ctx context.Context) (map[string]any, error) {
	if m.cache != nil {
		if v, found := m.cache.Get(ctx, m.OptionKey(), m.CacheGroup(), false); found {
			if n, err := normalize(v); err == nil {
				if doc, ok := n.(map[string]any); ok {
					return doc, nil
				}
			}
		}
	}

	raw, found, err := m.store.Get(ctx, m.OptionKey())
	if err != nil {
		return nil, fmt.Errorf("read option %s: %w", m.OptionKey(), err)
	}
	if !found || len(raw) == 0 {
		return map[string]any{}, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode option %s: %w", m.OptionKey(), err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// =============================================================================
// Reads
// =============================================================================

// Get returns the value stored under key, or def when absent.
//
// The returned value is a copy; mutating it does not change the document.
func (m *Memory) Get(key string, def any) any {
	m.mu.Lock()
	m.ensureLoaded(context.Background())
	v, found := m.data[key]
	if found {
		v = clone(v)
	} else {
		v = def
	}
	m.mu.Unlock()

	return m.Hooks.Value.Apply(Lookup{Key: key, Value: v, Found: found}).Value
}

// GetString returns the value as a string. Numbers and booleans are
// formatted; other types yield def.
func (m *Memory) GetString(key, def string) string {
	if s, ok := asString(m.Get(key, def)); ok {
		return s
	}
	return def
}

// GetBool interprets the value as a boolean ("1", "true", "on", non-zero).
func (m *Memory) GetBool(key string, def bool) bool {
	if b, ok := asBool(m.Get(key, def)); ok {
		return b
	}
	return def
}

// GetStringSlice returns the string elements of a list value, or def when
// the value is absent or not a list.
func (m *Memory) GetStringSlice(key string, def []string) []string {
	list, ok := m.Get(key, nil).([]any)
	if !ok {
		return def
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := asString(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether key is present.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(context.Background())
	_, ok := m.data[key]
	return ok
}

// All returns a copy of the whole document.
func (m *Memory) All() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(context.Background())
	return clone(m.data).(map[string]any)
}

// Keys returns the document keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(context.Background())
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsModified reports whether the document has unsaved changes.
func (m *Memory) IsModified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modified
}

// =============================================================================
// Writes
// =============================================================================

// Set stores value under key.
//
// Description:
//
//	The value is normalized to its JSON form first. Storing a value equal
//	to the current one changes nothing and leaves the dirty flag alone.
//	Values that cannot be JSON encoded are rejected and logged.
//
// Outputs:
//
//	bool - True when the document changed.
func (m *Memory) Set(key string, value any) bool {
	n, err := normalize(value)
	if err != nil {
		m.logger.Error("settings value rejected", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	m.mu.Lock()
	m.ensureLoaded(context.Background())
	change, changed := m.setLocked(key, n)
	m.mu.Unlock()

	if changed {
		m.Hooks.Changed.Fire(change)
	}
	return changed
}

// Update replaces the value of an existing key. Absent keys are left
// absent and false is returned.
func (m *Memory) Update(key string, value any) bool {
	if !m.Has(key) {
		return false
	}
	return m.Set(key, value)
}

// SetMany stores every entry of values and reports whether any changed.
func (m *Memory) SetMany(values map[string]any) bool {
	keys := make([]string, 0, len(values))
	normalized := make(map[string]any, len(values))
	for k, v := range values {
		n, err := normalize(v)
		if err != nil {
			m.logger.Error("settings value rejected", slog.String("key", k), slog.String("error", err.Error()))
			continue
		}
		keys = append(keys, k)
		normalized[k] = n
	}
	sort.Strings(keys)

	var changes []Change
	m.mu.Lock()
	m.ensureLoaded(context.Background())
	for _, k := range keys {
		if change, ok := m.setLocked(k, normalized[k]); ok {
			changes = append(changes, change)
		}
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.Hooks.Changed.Fire(c)
	}
	return len(changes) > 0
}

// Delete removes key. Returns false when it was absent.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	m.ensureLoaded(context.Background())
	old, ok := m.data[key]
	if ok {
		delete(m.data, key)
		m.modified = true
	}
	m.mu.Unlock()

	if ok {
		m.Hooks.Changed.Fire(Change{Key: key, Old: clone(old), Deleted: true})
	}
	return ok
}

// AddToArray appends value to the list under key unless already present.
// An absent key starts a new list.
//
// Outputs:
//
//	bool - True when the list changed.
//	error - ErrNotList when the existing value is not a list.
func (m *Memory) AddToArray(key string, value any) (bool, error) {
	n, err := normalize(value)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.ensureLoaded(context.Background())
	var list []any
	if existing, ok := m.data[key]; ok {
		if list, ok = existing.([]any); !ok {
			m.mu.Unlock()
			return false, fmt.Errorf("add to %q: %w", key, ErrNotList)
		}
		if indexOf(list, n) >= 0 {
			m.mu.Unlock()
			return false, nil
		}
	}
	next := append(clone(list).([]any), n)
	change, _ := m.setLocked(key, next)
	m.mu.Unlock()

	m.Hooks.Changed.Fire(change)
	return true, nil
}

// RemoveFromArray removes every occurrence of value from the list under
// key.
//
// Outputs:
//
//	bool - True when something was removed.
//	error - ErrNotList when the existing value is not a list.
func (m *Memory) RemoveFromArray(key string, value any) (bool, error) {
	n, err := normalize(value)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.ensureLoaded(context.Background())
	existing, ok := m.data[key]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	list, ok := existing.([]any)
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("remove from %q: %w", key, ErrNotList)
	}
	next := make([]any, 0, len(list))
	for _, item := range list {
		if !equal(item, n) {
			next = append(next, clone(item))
		}
	}
	if len(next) == len(list) {
		m.mu.Unlock()
		return false, nil
	}
	change, _ := m.setLocked(key, next)
	m.mu.Unlock()

	m.Hooks.Changed.Fire(change)
	return true, nil
}

// setLocked stores an already normalized value. Must be called with mu held.
func (m *Memory) setLocked(key string, n any) (Change, bool) {
	old, existed := m.data[key]
	if existed && equal(old, n) {
		return Change{}, false
	}
	m.data[key] = n
	m.modified = true
	return Change{Key: key, Old: clone(old), New: clone(n)}, true
}

// =============================================================================
// Persistence
// =============================================================================

// Sync writes the document to the option store when it has unsaved
// changes.
//
// Description:
//
//	A clean document performs no storage write. When the initial load
//	failed the stored document is read again first; if it is still
//	unreadable nothing is written and ErrNotLoaded is returned. On failure
//	the error is logged, the dirty flag stays set and the error is
//	returned.
func (m *Memory) Sync(ctx context.Context) error {
	m.mu.Lock()
	if !m.loaded || !m.modified {
		m.mu.Unlock()
		return nil
	}
	if m.loadErr != nil {
		if err := m.reload(ctx); err != nil {
			m.mu.Unlock()
			syncTotal.WithLabelValues("failure").Inc()
			m.logger.Error("settings sync refused, stored document unreadable",
				slog.String("option", m.OptionKey()),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%w: %w", ErrNotLoaded, err)
		}
	}
	if err := m.flush(ctx); err != nil {
		m.mu.Unlock()
		syncTotal.WithLabelValues("failure").Inc()
		m.logger.Error("settings sync failed",
			slog.String("option", m.OptionKey()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sync settings: %w", err)
	}
	snapshot := clone(m.data).(map[string]any)
	m.mu.Unlock()

	syncTotal.WithLabelValues("success").Inc()
	m.Hooks.Synced.Fire(snapshot)
	return nil
}

// reload retries a failed load before a write. On success the stored
// document is migrated and the values set since the failure are applied
// on top. Must be called with mu held.
func (m *Memory) reload(ctx context.Context) error {
	doc, err := m.read(ctx)
	if err != nil {
		return err
	}
	pending := m.data
	m.data = doc
	m.loadErr = nil
	m.migrate(ctx)
	for k, v := range pending {
		m.data[k] = v
	}
	m.modified = true
	return nil
}

// flush writes the document and refreshes the cache slot. Must be called
// with mu held.
func (m *Memory) flush(ctx context.Context) error {
	raw, err := json.Marshal(m.data)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := m.store.Set(ctx, m.OptionKey(), raw); err != nil {
		return err
	}
	m.modified = false
	if m.cache != nil {
		m.cache.Set(ctx, m.OptionKey(), clone(m.data), m.CacheGroup(), 0)
	}
	return nil
}

// ClearAll erases the document from memory, the cache slot and the
// option store.
//
// Returns false when the option could not be deleted; the in-memory
// document is cleared regardless and marked dirty so a later Sync writes
// the empty document.
func (m *Memory) ClearAll(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loaded = true
	m.loadErr = nil
	m.data = map[string]any{}
	if m.cache != nil {
		m.cache.Delete(ctx, m.OptionKey(), m.CacheGroup())
	}
	if err := m.store.Delete(ctx, m.OptionKey()); err != nil {
		m.modified = true
		m.logger.Error("settings clear failed",
			slog.String("option", m.OptionKey()),
			slog.String("error", err.Error()),
		)
		return false
	}
	m.modified = false
	return true
}
