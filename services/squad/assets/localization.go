// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"regexp"
	"sync"
)

// Localization maps JavaScript object names to data printed once per page.
// Each Flush prints the entries no earlier Flush printed, so data added
// after the head output still reaches the footer.
//
// Thread Safety: Safe for concurrent use.
type Localization struct {
	mu      sync.Mutex
	entries map[string]map[string]any
	order   []string
	printed map[string]bool
	flushed bool
	logger  *slog.Logger
}

// NewLocalization creates an empty registry.
func NewLocalization(logger *slog.Logger) *Localization {
	if logger == nil {
		logger = slog.Default()
	}
	return &Localization{
		entries: map[string]map[string]any{},
		printed: map[string]bool{},
		logger:  logger,
	}
}

var jsIdentRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Add stores data under name, replacing any previous payload. Names that
// are not JavaScript identifiers are rejected.
func (l *Localization) Add(name string, data map[string]any) bool {
	if !jsIdentRe.MatchString(name) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnPrinted(name)
	if _, ok := l.entries[name]; !ok {
		l.order = append(l.order, name)
	}
	l.entries[name] = copyMap(data)
	return true
}

// Update deep-merges data into the payload under name. Nested maps merge;
// every other value in data overwrites.
func (l *Localization) Update(name string, data map[string]any) bool {
	if !jsIdentRe.MatchString(name) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnPrinted(name)
	existing, ok := l.entries[name]
	if !ok {
		l.order = append(l.order, name)
		l.entries[name] = copyMap(data)
		return true
	}
	deepMerge(existing, data)
	return true
}

// warnPrinted logs a change to a payload that is already on the page. Must
// be called with mu held.
func (l *Localization) warnPrinted(name string) {
	if l.printed[name] {
		l.logger.Warn("localization changed after output, change not printed",
			slog.String("object", name))
	}
}

// Get returns a copy of the payload under name.
func (l *Localization) Get(name string) (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.entries[name]
	if !ok {
		return nil, false
	}
	return copyMap(data), true
}

// Has reports whether name has a payload.
func (l *Localization) Has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[name]
	return ok
}

// Remove drops name and reports whether it existed.
func (l *Localization) Remove(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[name]; !ok {
		return false
	}
	delete(l.entries, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns a copy of every payload.
func (l *Localization) All() map[string]map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]map[string]any, len(l.entries))
	for name, data := range l.entries {
		out[name] = copyMap(data)
	}
	return out
}

// Clear drops every payload. The flushed and printed state is kept.
func (l *Localization) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = map[string]map[string]any{}
	l.order = nil
}

// Flushed reports whether Flush has run.
func (l *Localization) Flushed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushed
}

// Flush writes every payload as an inline script, in insertion order.
//
// Description:
//
//	Writes the entries not printed by an earlier call; with nothing new it
//	returns (false, nil). A payload that cannot be encoded is logged and
//	skipped.
//
//	<script id="{name}-js-extra">var {name} = {json};</script>
//
// Outputs:
//
//	bool - True when this call printed at least one entry.
//	error - Write failure.
func (l *Localization) Flush(w io.Writer) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushed = true

	wrote := false
	for _, name := range l.order {
		if l.printed[name] {
			continue
		}
		l.printed[name] = true
		payload, err := json.Marshal(l.entries[name])
		if err != nil {
			l.logger.Error("localization payload skipped",
				slog.String("object", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := fmt.Fprintf(w, "<script id=\"%s-js-extra\">var %s = %s;</script>\n",
			html.EscapeString(name), name, payload); err != nil {
			return true, fmt.Errorf("write localization %s: %w", name, err)
		}
		wrote = true
	}
	return wrote, nil
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
			dst[k] = copyMap(srcMap)
			continue
		}
		dst[k] = v
	}
}
