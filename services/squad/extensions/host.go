// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Host is what extensions may touch when they load.
type Host struct {
	Uploads    *Uploads
	Shortcodes *Shortcodes
	Layouts    LayoutSource
	Logger     *slog.Logger
}

// NewHost creates a Host with empty registries.
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		Uploads:    NewUploads(),
		Shortcodes: NewShortcodes(),
		Logger:     logger,
	}
}

// LayoutSource looks up saved builder layouts by ID.
type LayoutSource interface {
	Layout(ctx context.Context, id string) (string, bool, error)
}

// =============================================================================
// Upload allow-list
// =============================================================================

// ContentCheck inspects an upload's bytes before it is accepted.
type ContentCheck func(content []byte) error

type uploadType struct {
	mime  string
	check ContentCheck
}

// Uploads is the upload MIME allow-list extended by extensions.
//
// Thread Safety: Safe for concurrent use.
type Uploads struct {
	mu    sync.RWMutex
	types map[string]uploadType
}

// NewUploads creates an empty allow-list.
func NewUploads() *Uploads {
	return &Uploads{types: map[string]uploadType{}}
}

// Allow permits files with extension ext (without dot) as mime. check may
// be nil.
func (u *Uploads) Allow(ext, mime string, check ContentCheck) {
	u.mu.Lock()
	u.types[strings.ToLower(ext)] = uploadType{mime: mime, check: check}
	u.mu.Unlock()
}

// MIME returns the allowed MIME type for a file name.
func (u *Uploads) MIME(filename string) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	t, ok := u.types[uploadExt(filename)]
	return t.mime, ok
}

// Types returns the allow-list as extension → MIME.
func (u *Uploads) Types() map[string]string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]string, len(u.types))
	for ext, t := range u.types {
		out[ext] = t.mime
	}
	return out
}

// Validate accepts or rejects an upload.
func (u *Uploads) Validate(filename string, content []byte) (string, error) {
	u.mu.RLock()
	t, ok := u.types[uploadExt(filename)]
	u.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadNotAllowed, filename)
	}
	if t.check != nil {
		if err := t.check(content); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUploadRejected, filename, err)
		}
	}
	return t.mime, nil
}

func uploadExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// =============================================================================
// Shortcodes
// =============================================================================

// ShortcodeFunc renders a shortcode occurrence.
type ShortcodeFunc func(ctx context.Context, attrs map[string]string, content string) (string, error)

// Shortcodes maps shortcode tags to renderers.
//
// Thread Safety: Safe for concurrent use.
type Shortcodes struct {
	mu    sync.RWMutex
	funcs map[string]ShortcodeFunc
}

// NewShortcodes creates an empty registry.
func NewShortcodes() *Shortcodes {
	return &Shortcodes{funcs: map[string]ShortcodeFunc{}}
}

// Register adds or replaces the renderer for tag.
func (s *Shortcodes) Register(tag string, fn ShortcodeFunc) {
	if tag == "" || fn == nil {
		return
	}
	s.mu.Lock()
	s.funcs[tag] = fn
	s.mu.Unlock()
}

// Tags returns the registered tags in sorted order.
func (s *Shortcodes) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]string, 0, len(s.funcs))
	for t := range s.funcs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Render invokes the renderer for tag.
func (s *Shortcodes) Render(ctx context.Context, tag string, attrs map[string]string, content string) (string, error) {
	s.mu.RLock()
	fn, ok := s.funcs[tag]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownShortcode, tag)
	}
	return fn(ctx, attrs, content)
}
