// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/AleutianAI/SquadModules/services/squad/assets"
	"github.com/AleutianAI/SquadModules/services/squad/cache"
	"github.com/AleutianAI/SquadModules/services/squad/extensions"
	"github.com/AleutianAI/SquadModules/services/squad/requirements"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /v1/squad/health.
type HealthResponse struct {
	Status       string              `json:"status"`
	Version      string              `json:"version"`
	Phase        string              `json:"phase"`
	Degraded     bool                `json:"degraded"`
	Requirements requirements.Result `json:"requirements"`
}

// ExtensionView is one entry of GET /v1/squad/extensions.
type ExtensionView struct {
	extensions.Definition
	Active bool `json:"active"`
	Loaded bool `json:"loaded"`
}

// ExtensionsResponse lists extensions with the current partition.
type ExtensionsResponse struct {
	Extensions []ExtensionView       `json:"extensions"`
	Active     []string              `json:"active"`
	Inactive   []string              `json:"inactive"`
	Report     extensions.LoadReport `json:"load_report"`
}

// StateChangeResponse is returned by enable, disable and reset.
type StateChangeResponse struct {
	Name     string   `json:"name,omitempty"`
	Changed  bool     `json:"changed"`
	Active   []string `json:"active"`
	Inactive []string `json:"inactive"`
}

// MemoryValue is the body of GET and PUT /v1/squad/memory/:key.
type MemoryValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// MemoryWriteRequest is the body of PUT /v1/squad/memory/:key.
type MemoryWriteRequest struct {
	Value any `json:"value" binding:"required"`
}

// MemoryWriteResponse reports whether a write changed the document.
type MemoryWriteResponse struct {
	Key     string `json:"key"`
	Changed bool   `json:"changed"`
}

// CacheStatsResponse is returned by GET /v1/squad/cache/stats.
type CacheStatsResponse struct {
	cache.Stats
	HitRate      float64 `json:"hit_rate"`
	External     bool    `json:"external"`
	DefaultGroup string  `json:"default_group"`
}

// ResolveRequest is bound from the query of GET /v1/squad/assets/resolve.
type ResolveRequest struct {
	File     string   `form:"file" binding:"required"`
	DevFile  string   `form:"dev_file"`
	ProdFile string   `form:"prod_file"`
	Path     string   `form:"path"`
	Pattern  string   `form:"pattern"`
	Ext      string   `form:"ext"`
	Deps     []string `form:"dep"`
	External bool     `form:"external"`
	Mode     string   `form:"mode" binding:"omitempty,oneof=url local logical"`
}

// Descriptor converts the query to an asset descriptor.
func (r ResolveRequest) Descriptor() assets.Descriptor {
	return assets.Descriptor{
		File:     r.File,
		DevFile:  r.DevFile,
		ProdFile: r.ProdFile,
		Path:     r.Path,
		Pattern:  r.Pattern,
		Ext:      r.Ext,
		Deps:     r.Deps,
		External: r.External,
	}
}

// ResolveResponse is returned by GET /v1/squad/assets/resolve.
type ResolveResponse struct {
	assets.Resolved
	Mode   string `json:"mode"`
	Target string `json:"target"`
	Exists bool   `json:"exists"`
}

// UploadTypesResponse is returned by GET /v1/squad/uploads/types.
type UploadTypesResponse struct {
	// Types maps a file extension (without dot) to its MIME type.
	Types map[string]string `json:"types"`
}

// UploadCheckResponse is returned by POST /v1/squad/uploads/check for an
// accepted file.
type UploadCheckResponse struct {
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int    `json:"size"`
}

// ShortcodesResponse is returned by GET /v1/squad/shortcodes.
type ShortcodesResponse struct {
	Tags []string `json:"tags"`
}

// ShortcodeRenderRequest is the body of POST
// /v1/squad/shortcodes/:tag/render.
type ShortcodeRenderRequest struct {
	Attrs   map[string]string `json:"attrs"`
	Content string            `json:"content"`
}

// ShortcodeRenderResponse carries rendered shortcode HTML.
type ShortcodeRenderResponse struct {
	Tag  string `json:"tag"`
	HTML string `json:"html"`
}

// Layout is the body of GET and PUT /v1/squad/layouts/:id.
type Layout struct {
	ID      string `json:"id"`
	Content string `json:"content" binding:"required"`
}
