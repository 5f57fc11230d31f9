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
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SquadModules/services/squad/extensions"
)

// MaxUploadSize bounds files sent to POST /v1/squad/uploads/check.
const MaxUploadSize = 8 << 20

// =============================================================================
// Uploads
// =============================================================================

// HandleUploadTypes handles GET /v1/squad/uploads/types.
func (h *Handlers) HandleUploadTypes(c *gin.Context) {
	c.JSON(http.StatusOK, UploadTypesResponse{Types: h.app.Host().Uploads.Types()})
}

// HandleUploadCheck handles POST /v1/squad/uploads/check.
//
// The file is sent as the multipart field "file" and checked against the
// allow-list built by the loaded extensions. Nothing is stored.
//
// Response:
//
//	200 OK: UploadCheckResponse
//	400 Bad Request: no file field
//	413 Request Entity Too Large: larger than MaxUploadSize
//	415 Unsupported Media Type: extension not allowed
//	422 Unprocessable Entity: content check failed
func (h *Handlers) HandleUploadCheck(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Missing upload",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}
	if header.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Upload too large",
			Code:  "UPLOAD_TOO_LARGE",
		})
		return
	}
	f, err := header.Open()
	if err != nil {
		h.internalError(c, "open upload", err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, MaxUploadSize))
	if err != nil {
		h.internalError(c, "read upload", err)
		return
	}

	mime, err := h.app.Host().Uploads.Validate(header.Filename, content)
	switch {
	case errors.Is(err, extensions.ErrUploadNotAllowed):
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
			Error:   "Upload type not allowed",
			Code:    "UPLOAD_NOT_ALLOWED",
			Details: header.Filename,
		})
	case errors.Is(err, extensions.ErrUploadRejected):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Upload rejected",
			Code:    "UPLOAD_REJECTED",
			Details: err.Error(),
		})
	case err != nil:
		h.internalError(c, "validate upload", err)
	default:
		c.JSON(http.StatusOK, UploadCheckResponse{
			Filename: header.Filename,
			MIME:     mime,
			Size:     len(content),
		})
	}
}

// =============================================================================
// Shortcodes
// =============================================================================

// HandleListShortcodes handles GET /v1/squad/shortcodes.
func (h *Handlers) HandleListShortcodes(c *gin.Context) {
	c.JSON(http.StatusOK, ShortcodesResponse{Tags: h.app.Host().Shortcodes.Tags()})
}

// HandleRenderShortcode handles POST /v1/squad/shortcodes/:tag/render.
//
// Response:
//
//	200 OK: ShortcodeRenderResponse
//	400 Bad Request: malformed body or layout ID
//	404 Not Found: no loaded extension registered the tag
func (h *Handlers) HandleRenderShortcode(c *gin.Context) {
	tag := c.Param("tag")
	var req ShortcodeRenderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Code:    "INVALID_REQUEST",
				Details: err.Error(),
			})
			return
		}
	}

	out, err := h.app.Host().Shortcodes.Render(c.Request.Context(), tag, req.Attrs, req.Content)
	switch {
	case errors.Is(err, extensions.ErrUnknownShortcode):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Unknown shortcode",
			Code:    "UNKNOWN_SHORTCODE",
			Details: tag,
		})
	case errors.Is(err, extensions.ErrInvalidLayoutID):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid layout id",
			Code:    "INVALID_LAYOUT_ID",
			Details: err.Error(),
		})
	case err != nil:
		h.internalError(c, "render shortcode", err)
	default:
		c.JSON(http.StatusOK, ShortcodeRenderResponse{Tag: tag, HTML: out})
	}
}

// =============================================================================
// Layouts
// =============================================================================

// HandleGetLayout handles GET /v1/squad/layouts/:id.
func (h *Handlers) HandleGetLayout(c *gin.Context) {
	id := c.Param("id")
	content, found, err := h.app.Layouts().Layout(c.Request.Context(), id)
	switch {
	case errors.Is(err, extensions.ErrInvalidLayoutID):
		invalidLayoutID(c, err)
	case err != nil:
		h.internalError(c, "read layout", err)
	case !found:
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Layout not found",
			Code:    "LAYOUT_NOT_FOUND",
			Details: id,
		})
	default:
		c.JSON(http.StatusOK, Layout{ID: id, Content: content})
	}
}

// HandlePutLayout handles PUT /v1/squad/layouts/:id.
func (h *Handlers) HandlePutLayout(c *gin.Context) {
	id := c.Param("id")
	var req Layout
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}
	err := h.app.Layouts().Save(c.Request.Context(), id, req.Content)
	switch {
	case errors.Is(err, extensions.ErrInvalidLayoutID):
		invalidLayoutID(c, err)
	case err != nil:
		h.internalError(c, "save layout", err)
	default:
		c.JSON(http.StatusOK, Layout{ID: id, Content: req.Content})
	}
}

// HandleDeleteLayout handles DELETE /v1/squad/layouts/:id.
func (h *Handlers) HandleDeleteLayout(c *gin.Context) {
	err := h.app.Layouts().Delete(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, extensions.ErrInvalidLayoutID):
		invalidLayoutID(c, err)
	case err != nil:
		h.internalError(c, "delete layout", err)
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *Handlers) internalError(c *gin.Context, op string, err error) {
	h.requestLogger(c).Error(op+" failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: "Internal error",
		Code:  "INTERNAL_ERROR",
	})
}

func invalidLayoutID(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid layout id",
		Code:    "INVALID_LAYOUT_ID",
		Details: err.Error(),
	})
}
