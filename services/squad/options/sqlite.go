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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS options (
	option_name  TEXT PRIMARY KEY,
	option_value BLOB NOT NULL,
	updated_at   INTEGER NOT NULL
)`

// SQLiteStore persists options in a single SQLite table.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLiteStore opens (and creates when needed) the SQLite file at path.
//
// Description:
//
//	Uses WAL journaling and a busy timeout so concurrent processes that
//	share the file serialize writes instead of failing. The options table
//	is created on first open.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create options table: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT option_value FROM options WHERE option_name = ?`, name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select option %s: %w", name, err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, name string, value []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO options (option_name, option_value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(option_name) DO UPDATE SET
		   option_value = excluded.option_value,
		   updated_at = excluded.updated_at`,
		name, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert option %s: %w", name, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM options WHERE option_name = ?`, name); err != nil {
		return fmt.Errorf("delete option %s: %w", name, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
