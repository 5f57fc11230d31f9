// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assets resolves, registers and prints the plugin's scripts and
// styles.
//
// The package is a composition of small pieces:
//
//	Resolver      descriptor → URL / local path / version / dependencies
//	Registry      short handle → resolved script or style, enqueue state
//	Localization  object name → data, printed once as inline scripts
//	BodyClasses   ordered set of tokens, prefixed only when printed
//	Page          one request's Registry + Localization + BodyClasses
//	Watcher       invalidates the Resolver memo when the build changes
//
// Resolution is a pure function of the descriptor, the dev/prod flag and
// the files present on disk: resolving the same descriptor twice against
// the same build yields the same result.
package assets

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFile is returned when a descriptor has no File. It is a
	// programming error and is never degraded.
	ErrMissingFile = errors.New("asset descriptor has no file")

	// ErrUnknownKind is returned for a Kind other than script or style.
	ErrUnknownKind = errors.New("unknown asset kind")
)

// Mode selects what ResolvePath returns.
type Mode int

const (
	// ModeURL returns the public URL.
	ModeURL Mode = iota

	// ModeLocal returns the filesystem path.
	ModeLocal

	// ModeLogical returns the path relative to the plugin root.
	ModeLogical
)

// String returns "url", "local", "logical" or "unknown".
func (m Mode) String() string {
	switch m {
	case ModeURL:
		return "url"
	case ModeLocal:
		return "local"
	case ModeLogical:
		return "logical"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of Mode.String. Unknown strings yield ModeURL.
func ParseMode(s string) Mode {
	switch s {
	case "local":
		return ModeLocal
	case "logical":
		return ModeLogical
	default:
		return ModeURL
	}
}

// Kind distinguishes scripts from styles.
type Kind string

const (
	KindScript Kind = "script"
	KindStyle  Kind = "style"
)

// Descriptor declares one asset.
type Descriptor struct {
	// File is the base file name, e.g. "divider.js" or "divider". Required.
	File string `json:"file" yaml:"file"`

	// DevFile replaces File in development mode.
	DevFile string `json:"dev_file,omitempty" yaml:"dev_file,omitempty"`

	// ProdFile replaces File outside development mode when it exists.
	ProdFile string `json:"prod_file,omitempty" yaml:"prod_file,omitempty"`

	// Path is a sub-directory appended to the path prefix.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Pattern is the path template. Default: DefaultPattern.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Ext is the extension without the dot. Taken from File when empty.
	Ext string `json:"ext,omitempty" yaml:"ext,omitempty"`

	// Deps are explicit dependency handles.
	Deps []string `json:"deps,omitempty" yaml:"deps,omitempty"`

	// External places the file outside the build root.
	External bool `json:"external,omitempty" yaml:"external,omitempty"`

	// NoPrefix registers the handle without the plugin prefix.
	NoPrefix bool `json:"no_prefix,omitempty" yaml:"no_prefix,omitempty"`
}

// Resolved is the outcome of processing a Descriptor.
type Resolved struct {
	URL          string   `json:"url"`
	Path         string   `json:"path"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
	Minified     bool     `json:"minified"`
}

// memoKey identifies a descriptor's location inputs.
func (d Descriptor) memoKey() string {
	return fmt.Sprintf("%q|%q|%q|%q|%q|%q|%t", d.File, d.DevFile, d.ProdFile, d.Path, d.Pattern, d.Ext, d.External)
}
