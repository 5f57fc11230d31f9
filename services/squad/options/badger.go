// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package options

import (
	"context"
	"fmt"
	"log/slog"

	squadbadger "github.com/AleutianAI/SquadModules/services/squad/storage/badger"
)

// optionKeyPrefix namespaces option rows inside a shared badger database.
const optionKeyPrefix = "option:"

// BadgerStore persists options in BadgerDB.
type BadgerStore struct {
	db    *squadbadger.DB
	owned bool
}

// OpenBadgerStore opens a durable BadgerStore at path.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	cfg := squadbadger.DefaultConfig(path)
	cfg.Logger = logger
	db, err := squadbadger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open option store: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps an already open database. Close leaves db open.
func NewBadgerStore(db *squadbadger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func optionKey(name string) []byte {
	return []byte(optionKeyPrefix + name)
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	return s.db.Get(ctx, optionKey(name))
}

// Set implements Store.
func (s *BadgerStore) Set(ctx context.Context, name string, value []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.db.Set(ctx, optionKey(name), value, 0)
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, name string) error {
	return s.db.Delete(ctx, optionKey(name))
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
