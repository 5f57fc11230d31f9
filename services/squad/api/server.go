// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the Squad admin HTTP API.
//
// Routes:
//
//	GET    /v1/squad/health
//	GET    /v1/squad/extensions
//	POST   /v1/squad/extensions/:name/enable
//	POST   /v1/squad/extensions/:name/disable
//	POST   /v1/squad/extensions/reset
//	GET    /v1/squad/memory/:key
//	PUT    /v1/squad/memory/:key
//	DELETE /v1/squad/memory/:key
//	GET    /v1/squad/cache/stats
//	GET    /v1/squad/assets/resolve
//	GET    /v1/squad/preview
//	GET    /v1/squad/uploads/types
//	POST   /v1/squad/uploads/check
//	GET    /v1/squad/shortcodes
//	POST   /v1/squad/shortcodes/:tag/render
//	GET    /v1/squad/layouts/:id
//	PUT    /v1/squad/layouts/:id
//	DELETE /v1/squad/layouts/:id
//	GET    /metrics
//
// Every request ends with App.EndRequest, so settings changed by a handler
// are persisted before the response is logged. Write routes share a token
// bucket sized by server.mutation_rate and server.mutation_burst. When
// server.token is set, every route except health and metrics requires it
// as a bearer token.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/SquadModules/services/squad/app"
	"github.com/AleutianAI/SquadModules/services/squad/config"
	"github.com/AleutianAI/SquadModules/services/squad/telemetry"
)

// ServiceName identifies the API in traces.
const ServiceName = "squad-admin"

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// NewRouter builds the gin engine for a.
func NewRouter(a *app.App) *gin.Engine {
	h := &Handlers{app: a, logger: a.Logger()}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(ServiceName),
		requestID(),
		h.accessLog(),
		h.endRequest(),
	)

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1/squad")
	{
		v1.GET("/health", h.HandleHealth)

		admin := v1.Group("", requireToken(a.Config().Server.Token))
		admin.GET("/cache/stats", h.HandleCacheStats)
		admin.GET("/assets/resolve", h.HandleResolve)
		admin.GET("/preview", h.HandlePreview)

		limit := limitMutations(a.Config().Server)

		ext := admin.Group("/extensions")
		{
			ext.GET("", h.HandleListExtensions)
			ext.POST("/reset", limit, h.HandleResetExtensions)
			ext.POST("/:name/enable", limit, h.HandleSetExtension(true))
			ext.POST("/:name/disable", limit, h.HandleSetExtension(false))
		}

		uploads := admin.Group("/uploads")
		{
			uploads.GET("/types", h.HandleUploadTypes)
			uploads.POST("/check", h.HandleUploadCheck)
		}

		shortcodes := admin.Group("/shortcodes")
		{
			shortcodes.GET("", h.HandleListShortcodes)
			shortcodes.POST("/:tag/render", h.HandleRenderShortcode)
		}

		layouts := admin.Group("/layouts")
		{
			layouts.GET("/:id", h.HandleGetLayout)
			layouts.PUT("/:id", limit, h.HandlePutLayout)
			layouts.DELETE("/:id", limit, h.HandleDeleteLayout)
		}

		mem := admin.Group("/memory")
		{
			mem.GET("/:key", h.HandleGetMemory)
			mem.PUT("/:key", limit, h.HandlePutMemory)
			mem.DELETE("/:key", limit, h.HandleDeleteMemory)
		}
	}
	return router
}

// =============================================================================
// Middleware
// =============================================================================

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// limitMutations shares one token bucket across all write routes. A zero
// rate disables limiting.
func limitMutations(cfg config.ServerConfig) gin.HandlerFunc {
	if cfg.MutationRate <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.MutationBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.MutationRate), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Too many write requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

func (h *Handlers) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.requestLogger(c).Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func (h *Handlers) endRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if err := h.app.EndRequest(c.Request.Context()); err != nil {
			h.requestLogger(c).Error("settings sync failed", slog.String("error", err.Error()))
		}
	}
}

func (h *Handlers) requestLogger(c *gin.Context) *slog.Logger {
	return telemetry.LoggerWithTrace(c.Request.Context(), h.logger).With(
		slog.String("request_id", c.GetString("request_id")),
	)
}

// =============================================================================
// Server
// =============================================================================

// Server runs the admin API over HTTP.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a Server for a using cfg's address and timeouts.
func NewServer(a *app.App, cfg config.ServerConfig) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(a),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		logger: a.Logger(),
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is done, then shuts down gracefully.
//
// Outputs:
//
//	error - A listen error, or a graceful shutdown failure.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin api listening", slog.String("addr", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
