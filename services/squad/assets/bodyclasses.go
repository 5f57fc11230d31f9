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
	"regexp"
	"strings"
	"sync"
)

var (
	percentOctetRe = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
	classUnsafeRe  = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// SanitizeClass strips percent-encoded octets and every character outside
// [A-Za-z0-9_-], the rule the host applies to HTML class names.
func SanitizeClass(token string) string {
	return classUnsafeRe.ReplaceAllString(percentOctetRe.ReplaceAllString(token, ""), "")
}

// BodyClasses is an ordered, duplicate-free set of unprefixed class tokens.
//
// Thread Safety: Safe for concurrent use.
type BodyClasses struct {
	prefix string

	mu     sync.Mutex
	tokens []string
}

// NewBodyClasses creates an empty set printed with "<prefix>-".
func NewBodyClasses(prefix string) *BodyClasses {
	return &BodyClasses{prefix: prefix}
}

// Add inserts the sanitized token. Returns false for duplicates and
// tokens that sanitize to nothing.
func (b *BodyClasses) Add(token string) bool {
	token = SanitizeClass(token)
	if token == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexLocked(token) >= 0 {
		return false
	}
	b.tokens = append(b.tokens, token)
	return true
}

// Remove deletes the sanitized token. Returns false when absent.
func (b *BodyClasses) Remove(token string) bool {
	token = SanitizeClass(token)
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexLocked(token)
	if i < 0 {
		return false
	}
	b.tokens = append(b.tokens[:i], b.tokens[i+1:]...)
	return true
}

// Has reports whether the sanitized token is present.
func (b *BodyClasses) Has(token string) bool {
	token = SanitizeClass(token)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexLocked(token) >= 0
}

// All returns the unprefixed tokens in insertion order.
func (b *BodyClasses) All() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tokens...)
}

// Clear empties the set.
func (b *BodyClasses) Clear() {
	b.mu.Lock()
	b.tokens = nil
	b.mu.Unlock()
}

// Apply appends the prefixed tokens to existing, skipping classes already
// present.
func (b *BodyClasses) Apply(existing []string) []string {
	out := append([]string(nil), existing...)
	for _, token := range b.All() {
		class := b.prefixed(token)
		if !contains(out, class) {
			out = append(out, class)
		}
	}
	return out
}

// ClassAttr is Apply over a space-separated class attribute value.
func (b *BodyClasses) ClassAttr(existing string) string {
	return strings.Join(b.Apply(strings.Fields(existing)), " ")
}

func (b *BodyClasses) prefixed(token string) string {
	if b.prefix == "" {
		return token
	}
	return b.prefix + "-" + token
}

func (b *BodyClasses) indexLocked(token string) int {
	for i, t := range b.tokens {
		if t == token {
			return i
		}
	}
	return -1
}
