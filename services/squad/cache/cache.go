// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides Cache, a pass-through over an object-cache backend
// that sanitizes keys, counts outcomes and lets callers veto operations.
//
// Cache adds no entry storage of its own. Every call sanitizes key and group
// identically before delegating, so one logical key always lands in the
// same backend slot. Backend errors and panics never reach the caller; they
// are logged and reported as a miss or a false result.
//
// # Thread Safety
//
// Cache is safe for concurrent use.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/SquadModules/pkg/hooks"
	"github.com/AleutianAI/SquadModules/services/squad/objectcache"
)

// DefaultGroup is used when a caller passes an empty group and no other
// default was configured.
const DefaultGroup = "divi-squad"

// Operation names passed to the bypass gate.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
)

// Call describes one cache operation after sanitization.
type Call struct {
	Op    string
	Key   string
	Group string
}

// Hooks are the extension points of a Cache.
type Hooks struct {
	// Bypass vetoes an operation before the backend is touched. A bypassed
	// Get reports not found; a bypassed Set or Delete reports false.
	// Counters are left alone.
	Bypass hooks.Gate[Call]
}

// Stats is a snapshot of the operation counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Writes  int64 `json:"writes"`
	Deletes int64 `json:"deletes"`
}

// HitRate returns hits / (hits + misses), or 0 when nothing was read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultGroup sets the group used when a caller passes "".
func WithDefaultGroup(group string) Option {
	return func(c *Cache) {
		if g := Sanitize(group); g != "" {
			c.defaultGroup = g
		}
	}
}

// WithDefaultTTL sets the expiry Remember uses when called without one.
// Zero keeps such entries until evicted.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// Cache is the hookable, stat-counting pass-through.
type Cache struct {
	Hooks Hooks

	backend      objectcache.Backend
	defaultGroup string
	defaultTTL   time.Duration
	logger       *slog.Logger
	flight       singleflight.Group

	hits    atomic.Int64
	misses  atomic.Int64
	writes  atomic.Int64
	deletes atomic.Int64
}

// New creates a Cache over backend.
//
// Inputs:
//
//	backend - The object-cache service. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Cache - Ready to use.
func New(backend objectcache.Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:      backend,
		defaultGroup: DefaultGroup,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sanitize lowercases s and strips everything outside [a-z0-9_-:.].
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == ':' || r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *Cache) normalize(op, key, group string) Call {
	g := Sanitize(group)
	if g == "" {
		g = c.defaultGroup
	}
	return Call{Op: op, Key: Sanitize(key), Group: g}
}

// Get reads key from group.
//
// Description:
//
//	force asks a persistent backend to skip its local copy. A backend
//	failure is logged and reported as not found without touching the
//	counters.
//
// Outputs:
//
//	any - The cached value, nil when not found.
//	bool - True when the backend reported a hit.
func (c *Cache) Get(ctx context.Context, key, group string, force bool) (any, bool) {
	call := c.normalize(OpGet, key, group)
	if c.Hooks.Bypass.Any(call) {
		return nil, false
	}

	ctx, span := startSpan(ctx, "Get", call.Key, call.Group)
	defer span.End()

	start := time.Now()
	var value any
	var found bool
	err := c.guard(call, func() error {
		var err error
		value, found, err = c.backend.Get(ctx, call.Key, call.Group, force)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false
	}

	recordGetLatency(ctx, time.Since(start), found)
	span.SetAttributes(hitAttr(found))
	if found {
		c.hits.Add(1)
		recordHit(ctx, call.Group)
		return value, true
	}
	c.misses.Add(1)
	recordMiss(ctx, call.Group)
	return nil, false
}

// Set stores value under key in group. ttl <= 0 means no expiry.
//
// Returns true when the backend accepted the write.
func (c *Cache) Set(ctx context.Context, key string, value any, group string, ttl time.Duration) bool {
	call := c.normalize(OpSet, key, group)
	if c.Hooks.Bypass.Any(call) {
		return false
	}

	ctx, span := startSpan(ctx, "Set", call.Key, call.Group)
	defer span.End()

	var ok bool
	err := c.guard(call, func() error {
		var err error
		ok, err = c.backend.Set(ctx, call.Key, call.Group, value, ttl)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	if ok {
		c.writes.Add(1)
		recordWrite(ctx, call.Group)
	}
	return ok
}

// Delete removes key from group. Returns true when an entry was removed.
func (c *Cache) Delete(ctx context.Context, key, group string) bool {
	call := c.normalize(OpDelete, key, group)
	if c.Hooks.Bypass.Any(call) {
		return false
	}

	ctx, span := startSpan(ctx, "Delete", call.Key, call.Group)
	defer span.End()

	var ok bool
	err := c.guard(call, func() error {
		var err error
		ok, err = c.backend.Delete(ctx, call.Key, call.Group)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	if ok {
		c.deletes.Add(1)
		recordDelete(ctx, call.Group)
	}
	return ok
}

// Remember returns the cached value for key or computes, stores and
// returns it.
//
// Description:
//
//	Concurrent callers missing the same (group, key) share one call to
//	compute. A ttl <= 0 falls back to the WithDefaultTTL expiry. A compute
//	error is returned and nothing is stored. A failed store is not an
//	error; the computed value is still returned.
func (c *Cache) Remember(ctx context.Context, key, group string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if value, found := c.Get(ctx, key, group, false); found {
		return value, nil
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	call := c.normalize(OpGet, key, group)
	value, err, _ := c.flight.Do(call.Group+"\x00"+call.Key, func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v, group, ttl)
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("compute %s/%s: %w", call.Group, call.Key, err)
	}
	return value, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Writes:  c.writes.Load(),
		Deletes: c.deletes.Load(),
	}
}

// ResetStats zeroes every counter.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.writes.Store(0)
	c.deletes.Store(0)
}

// IsUsingExternalCache reports whether the backend persists beyond the
// process.
func (c *Cache) IsUsingExternalCache() bool {
	persistent := false
	_ = c.guard(Call{Op: "persistent"}, func() error {
		persistent = c.backend.Persistent()
		return nil
	})
	return persistent
}

// DefaultGroupName returns the group used for empty group arguments.
func (c *Cache) DefaultGroupName() string {
	return c.defaultGroup
}

// guard runs fn, converting a panic into an error. Either is logged.
func (c *Cache) guard(call Call, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache backend panic: %v", r)
		}
		if err != nil {
			c.logger.Error("cache operation failed",
				slog.String("op", call.Op),
				slog.String("key", call.Key),
				slog.String("group", call.Group),
				slog.String("error", err.Error()),
			)
		}
	}()
	return fn()
}
