// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package objectcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	squadbadger "github.com/AleutianAI/SquadModules/services/squad/storage/badger"
)

// Badger is a persistent Backend stored in BadgerDB.
//
// Values are JSON encoded, so a round trip yields canonical JSON types
// (float64 numbers, []any lists, map[string]any objects).
type Badger struct {
	db *squadbadger.DB
}

// NewBadger wraps an open database. The caller owns db.
func NewBadger(db *squadbadger.DB) *Badger {
	return &Badger{db: db}
}

// cacheKey length-prefixes the group so no (key, group) pair can spell
// another pair's key, whatever separators either contains.
func cacheKey(key, group string) []byte {
	return fmt.Appendf(nil, "cache:%d:%s:%s", len(group), group, key)
}

// Get implements Backend. Badger has no local copy, so force is moot.
func (b *Badger) Get(ctx context.Context, key, group string, _ bool) (any, bool, error) {
	raw, found, err := b.db.Get(ctx, cacheKey(key, group))
	if err != nil || !found {
		return nil, false, err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s/%s: %w", group, key, err)
	}
	return value, true, nil
}

// Set implements Backend.
func (b *Badger) Set(ctx context.Context, key, group string, value any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode cache entry %s/%s: %w", group, key, err)
	}
	if err := b.db.Set(ctx, cacheKey(key, group), raw, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Backend.
func (b *Badger) Delete(ctx context.Context, key, group string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := cacheKey(key, group)
	existed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(k)
	})
	if err != nil {
		return false, fmt.Errorf("delete cache entry %s/%s: %w", group, key, err)
	}
	return existed, nil
}

// Persistent implements Backend.
func (b *Badger) Persistent() bool { return true }
