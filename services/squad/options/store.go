// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package options provides durable storage for named option values.
//
// An option is an opaque byte payload stored under a single name, the same
// model as a CMS options table. The settings document managed by the memory
// package is persisted as one option; legacy documents are other options
// that are read once and deleted.
//
// Three drivers are available:
//
//	memory  process-local map, used by tests and ephemeral runs
//	badger  embedded key-value store (services/squad/storage/badger)
//	sqlite  an "options" table in a SQLite file (modernc.org/sqlite)
//
// # Thread Safety
//
// Every Store implementation is safe for concurrent use.
package options

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown option store driver")

	// ErrEmptyName is returned when an option name is blank.
	ErrEmptyName = errors.New("option name is required")
)

// Store persists option payloads by name.
type Store interface {
	// Get returns the payload and true, or nil and false when absent.
	Get(ctx context.Context, name string) ([]byte, bool, error)

	// Set creates or replaces the payload stored under name.
	Set(ctx context.Context, name string, value []byte) error

	// Delete removes name. Deleting a missing option is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases underlying resources.
	Close() error
}

// Config selects and configures a Store driver.
type Config struct {
	// Driver is one of DriverMemory, DriverBadger, DriverSQLite.
	Driver string

	// Path is the badger directory or the sqlite file path.
	Path string

	// Logger receives driver diagnostics.
	Logger *slog.Logger
}

// Open creates the Store selected by cfg.Driver.
//
// Description:
//
//	An empty driver selects the memory store. Badger and sqlite require a
//	path.
//
// Outputs:
//
//	Store - The opened store. Caller must Close it.
//	error - ErrUnknownDriver, or the driver's open error.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverBadger:
		return OpenBadgerStore(cfg.Path, cfg.Logger)
	case DriverSQLite:
		return OpenSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}

// =============================================================================
// Memory driver
// =============================================================================

// MemoryStore keeps options in a process-local map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored options.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
