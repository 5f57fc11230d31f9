// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// migrate folds legacy options into the document once. Must be called with
// mu held.
//
// Description:
//
//	Skipped when the document carries the completion flag. Each legacy
//	option is decoded and merged with mergePreferCurrent. The merged
//	document is flushed before any legacy option is deleted, so a failed
//	flush loses nothing: the completion flag is withheld and the next load
//	repeats the (idempotent) merge.
func (m *Memory) migrate(ctx context.Context) {
	if done, _ := asBool(m.data[KeyMigrationCompleted]); done {
		return
	}

	var (
		entries []any
		errs    []any
		merged  []string
	)
	for _, key := range m.legacyKeys {
		if key == "" || key == m.OptionKey() {
			continue
		}
		raw, found, err := m.store.Get(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Sprintf("read %s: %v", key, err))
			continue
		}
		if !found {
			entries = append(entries, fmt.Sprintf("%s: not present", key))
			continue
		}

		var legacy any
		if err := json.Unmarshal(raw, &legacy); err != nil {
			errs = append(errs, fmt.Sprintf("decode %s: %v", key, err))
			continue
		}
		doc, ok := legacy.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("decode %s: not an object", key))
			continue
		}
		mergePreferCurrent(m.data, doc)
		merged = append(merged, key)
		entries = append(entries, fmt.Sprintf("%s: merged %d keys", key, len(doc)))
	}

	if entries == nil {
		entries = []any{}
	}
	m.data[KeyMigrationCompleted] = true
	m.data[KeyMigrationCompletedAt] = m.now().UTC().Format(time.RFC3339)
	m.data[KeyMigrationLog] = entries
	if len(errs) > 0 {
		m.data[KeyMigrationErrors] = errs
	}

	if err := m.flush(ctx); err != nil {
		delete(m.data, KeyMigrationCompleted)
		delete(m.data, KeyMigrationCompletedAt)
		m.data[KeyMigrationErrors] = append(errs, fmt.Sprintf("flush: %v", err))
		m.modified = true
		migrationsTotal.WithLabelValues("failure").Inc()
		m.logger.Error("settings migration could not be saved",
			slog.String("option", m.OptionKey()),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, key := range merged {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Warn("legacy option not deleted",
				slog.String("option", key),
				slog.String("error", err.Error()),
			)
		}
	}

	result := "success"
	if len(errs) > 0 {
		result = "partial"
	}
	migrationsTotal.WithLabelValues(result).Inc()
	m.logger.Info("settings migration completed",
		slog.Int("merged", len(merged)),
		slog.Int("errors", len(errs)),
	)
}
