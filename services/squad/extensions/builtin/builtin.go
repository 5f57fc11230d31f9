// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builtin holds the extensions shipped with the plugin.
package builtin

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/AleutianAI/SquadModules/services/squad/extensions"
)

// Factory keys, matching root_class in the definitions file.
const (
	SVGUpload            = "svg_upload"
	JSONUpload           = "json_upload"
	FontUpload           = "font_upload"
	DiviLibraryShortcode = "divi_library_shortcode"
)

// LibraryShortcodeTag is the shortcode rendered by the Divi Library
// extension.
const LibraryShortcodeTag = "divi_library_layout"

// Factories returns the factory of every built-in extension.
func Factories() map[string]extensions.Factory {
	return map[string]extensions.Factory{
		SVGUpload:            func() (extensions.Extension, error) { return svgUpload{}, nil },
		JSONUpload:           func() (extensions.Extension, error) { return jsonUpload{}, nil },
		FontUpload:           func() (extensions.Extension, error) { return fontUpload{}, nil },
		DiviLibraryShortcode: func() (extensions.Extension, error) { return libraryShortcode{}, nil },
	}
}

// =============================================================================
// Uploads
// =============================================================================

var (
	svgScriptRe  = regexp.MustCompile(`(?i)<\s*script\b`)
	svgHandlerRe = regexp.MustCompile(`(?i)\son[a-z]+\s*=`)
	svgJSHrefRe  = regexp.MustCompile(`(?i)(?:href|xlink:href)\s*=\s*["']\s*javascript:`)

	errSVGActiveContent = errors.New("svg contains active content")
)

// MaxSVGSize bounds decompressed SVG uploads.
const MaxSVGSize = 4 << 20

type svgUpload struct{}

func (svgUpload) Name() string { return SVGUpload }

func (svgUpload) Load(_ context.Context, host *extensions.Host) error {
	host.Uploads.Allow("svg", "image/svg+xml", checkSVG)
	host.Uploads.Allow("svgz", "image/svg+xml", checkSVG)
	return nil
}

// checkSVG rejects SVG documents carrying scripts, event handlers or
// javascript: links. Gzipped (svgz) content is inspected decompressed.
func checkSVG(content []byte) error {
	if len(content) > 2 && content[0] == 0x1f && content[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return fmt.Errorf("svgz: %w", err)
		}
		defer zr.Close()
		if content, err = io.ReadAll(io.LimitReader(zr, MaxSVGSize+1)); err != nil {
			return fmt.Errorf("svgz: %w", err)
		}
		if len(content) > MaxSVGSize {
			return fmt.Errorf("svgz: decompressed size exceeds %d bytes", MaxSVGSize)
		}
	}
	if !bytes.Contains(bytes.ToLower(content), []byte("<svg")) {
		return errors.New("not an svg document")
	}
	if svgScriptRe.Match(content) || svgHandlerRe.Match(content) || svgJSHrefRe.Match(content) {
		return errSVGActiveContent
	}
	return nil
}

type jsonUpload struct{}

func (jsonUpload) Name() string { return JSONUpload }

func (jsonUpload) Load(_ context.Context, host *extensions.Host) error {
	host.Uploads.Allow("json", "application/json", func(content []byte) error {
		if !json.Valid(content) {
			return errors.New("invalid json")
		}
		return nil
	})
	host.Uploads.Allow("lottie", "application/zip", nil)
	return nil
}

type fontUpload struct{}

func (fontUpload) Name() string { return FontUpload }

func (fontUpload) Load(_ context.Context, host *extensions.Host) error {
	for ext, mime := range map[string]string{
		"ttf":   "font/ttf",
		"otf":   "font/otf",
		"woff":  "font/woff",
		"woff2": "font/woff2",
	} {
		host.Uploads.Allow(ext, mime, nil)
	}
	return nil
}

// =============================================================================
// Divi Library shortcode
// =============================================================================

type libraryShortcode struct{}

func (libraryShortcode) Name() string { return DiviLibraryShortcode }

func (libraryShortcode) Load(_ context.Context, host *extensions.Host) error {
	layouts := host.Layouts
	host.Shortcodes.Register(LibraryShortcodeTag, func(ctx context.Context, attrs map[string]string, _ string) (string, error) {
		id := strings.TrimSpace(attrs["id"])
		if id == "" {
			return "", nil
		}
		body := ""
		if layouts != nil {
			content, found, err := layouts.Layout(ctx, id)
			if err != nil {
				return "", fmt.Errorf("layout %s: %w", id, err)
			}
			if !found {
				return "", nil
			}
			body = content
		}
		return fmt.Sprintf(`<div class="divi-squad-library-layout" data-layout-id="%s">%s</div>`, html.EscapeString(id), body), nil
	})
	return nil
}
