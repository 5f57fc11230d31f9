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
	"bytes"
	"errors"
	"html"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SquadModules/services/squad/app"
	"github.com/AleutianAI/SquadModules/services/squad/assets"
)

// Handlers contains the HTTP handlers for the admin API.
type Handlers struct {
	app    *app.App
	logger *slog.Logger
}

// HandleHealth handles GET /v1/squad/health.
//
// Response:
//
//	200 OK: HealthResponse. A degraded App is still healthy.
func (h *Handlers) HandleHealth(c *gin.Context) {
	status := "ok"
	if h.app.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:       status,
		Version:      h.app.Config().Version,
		Phase:        string(h.app.Phase()),
		Degraded:     h.app.Degraded(),
		Requirements: h.app.Requirements(),
	})
}

// =============================================================================
// Extensions
// =============================================================================

// HandleListExtensions handles GET /v1/squad/extensions.
func (h *Handlers) HandleListExtensions(c *gin.Context) {
	mgr := h.app.Extensions()
	defs := mgr.Definitions()

	views := make([]ExtensionView, 0, len(defs))
	for _, def := range defs {
		_, loaded := mgr.Loaded(def.Name)
		views = append(views, ExtensionView{
			Definition: def,
			Active:     mgr.IsActive(def.Name),
			Loaded:     loaded,
		})
	}
	c.JSON(http.StatusOK, ExtensionsResponse{
		Extensions: views,
		Active:     mgr.Active(),
		Inactive:   mgr.Inactive(),
		Report:     h.app.LoadReport(),
	})
}

// HandleSetExtension returns the handler for POST
// /v1/squad/extensions/:name/enable (activate) or /disable.
//
// Response:
//
//	200 OK: StateChangeResponse. Changed is false when the extension was
//	already in the requested state.
//	404 Not Found: unknown extension.
func (h *Handlers) HandleSetExtension(activate bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		mgr := h.app.Extensions()
		if _, ok := mgr.Definition(name); !ok {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Unknown extension",
				Code:    "UNKNOWN_EXTENSION",
				Details: name,
			})
			return
		}

		var changed bool
		if activate {
			changed = mgr.Enable(name)
		} else {
			changed = mgr.Disable(name)
		}
		c.JSON(http.StatusOK, StateChangeResponse{
			Name:     name,
			Changed:  changed,
			Active:   mgr.Active(),
			Inactive: mgr.Inactive(),
		})
	}
}

// HandleResetExtensions handles POST /v1/squad/extensions/reset.
func (h *Handlers) HandleResetExtensions(c *gin.Context) {
	mgr := h.app.Extensions()
	changed := mgr.ResetToDefault()
	c.JSON(http.StatusOK, StateChangeResponse{
		Changed:  changed,
		Active:   mgr.Active(),
		Inactive: mgr.Inactive(),
	})
}

// =============================================================================
// Memory
// =============================================================================

// HandleGetMemory handles GET /v1/squad/memory/:key.
//
// Response:
//
//	200 OK: MemoryValue
//	404 Not Found: key not set
func (h *Handlers) HandleGetMemory(c *gin.Context) {
	key := c.Param("key")
	mem := h.app.Memory()
	if !mem.Has(key) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Key not found",
			Code:    "KEY_NOT_FOUND",
			Details: key,
		})
		return
	}
	c.JSON(http.StatusOK, MemoryValue{Key: key, Value: mem.Get(key, nil)})
}

// HandlePutMemory handles PUT /v1/squad/memory/:key.
//
// Request Body:
//
//	MemoryWriteRequest
//
// Response:
//
//	200 OK: MemoryWriteResponse
//	400 Bad Request: missing or malformed value
func (h *Handlers) HandlePutMemory(c *gin.Context) {
	var req MemoryWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLogger(c).Warn("invalid memory write", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}
	key := c.Param("key")
	c.JSON(http.StatusOK, MemoryWriteResponse{Key: key, Changed: h.app.Memory().Set(key, req.Value)})
}

// HandleDeleteMemory handles DELETE /v1/squad/memory/:key. Deleting an
// absent key reports Changed false.
func (h *Handlers) HandleDeleteMemory(c *gin.Context) {
	key := c.Param("key")
	c.JSON(http.StatusOK, MemoryWriteResponse{Key: key, Changed: h.app.Memory().Delete(key)})
}

// =============================================================================
// Cache
// =============================================================================

// HandleCacheStats handles GET /v1/squad/cache/stats.
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	cc := h.app.Cache()
	stats := cc.Stats()
	c.JSON(http.StatusOK, CacheStatsResponse{
		Stats:        stats,
		HitRate:      stats.HitRate(),
		External:     cc.IsUsingExternalCache(),
		DefaultGroup: cc.DefaultGroupName(),
	})
}

// =============================================================================
// Assets
// =============================================================================

// HandleResolve handles GET /v1/squad/assets/resolve.
//
// Query Parameters:
//
//	ResolveRequest
//
// Response:
//
//	200 OK: ResolveResponse
//	400 Bad Request: missing file or invalid mode
func (h *Handlers) HandleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	d := req.Descriptor()
	mode := assets.ParseMode(req.Mode)
	resolver := h.app.Resolver()

	res, err := resolver.Process(d, nil)
	if err == nil {
		var target string
		if target, err = resolver.ResolvePath(d, mode); err == nil {
			c.JSON(http.StatusOK, ResolveResponse{
				Resolved: res,
				Mode:     mode.String(),
				Target:   target,
				Exists:   resolver.Exists(d),
			})
			return
		}
	}

	status, code := http.StatusInternalServerError, "RESOLVE_FAILED"
	if errors.Is(err, assets.ErrMissingFile) {
		status, code = http.StatusBadRequest, "MISSING_FILE"
	}
	c.JSON(status, ErrorResponse{Error: "Asset resolution failed", Code: code, Details: err.Error()})
}

// HandlePreview handles GET /v1/squad/preview.
//
// Description:
//
//	Renders an empty HTML document through a fresh page so the asset
//	providers' output can be inspected.
//
// Response:
//
//	200 OK: text/html
//	503 Service Unavailable: App not booted or shut down
func (h *Handlers) HandlePreview(c *gin.Context) {
	page, err := h.app.NewPage(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Page unavailable",
			Code:    "NOT_READY",
			Details: err.Error(),
		})
		return
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	if err := page.WriteHead(&buf); err != nil {
		h.renderFailed(c, err)
		return
	}
	buf.WriteString("</head>\n<body class=\"" + html.EscapeString(page.BodyClass(c.Query("class"))) + "\">\n")
	if err := page.WriteFooter(&buf); err != nil {
		h.renderFailed(c, err)
		return
	}
	buf.WriteString("</body>\n</html>\n")

	c.Header("X-Squad-Page", page.ID())
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handlers) renderFailed(c *gin.Context, err error) {
	h.requestLogger(c).Error("preview render failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: "Render failed",
		Code:  "RENDER_FAILED",
	})
}
