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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SquadModules/services/squad/app"
	"github.com/AleutianAI/SquadModules/services/squad/assets"
	"github.com/AleutianAI/SquadModules/services/squad/config"
	"github.com/AleutianAI/SquadModules/services/squad/extensions/builtin"
	"github.com/AleutianAI/SquadModules/services/squad/options"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testBaseURL = "https://example.test/wp-content/plugins/squad"

func newTestApp(t *testing.T, boot bool, opts ...app.Option) (*app.App, *options.MemoryStore) {
	t.Helper()
	return newTestAppWith(t, boot, nil, opts...)
}

func newTestAppWith(t *testing.T, boot bool, mutate func(*config.Config), opts ...app.Option) (*app.App, *options.MemoryStore) {
	t.Helper()
	cfg := config.Default()
	cfg.Assets.RootDir = t.TempDir()
	cfg.Assets.BaseURL = testBaseURL
	if mutate != nil {
		mutate(&cfg)
	}

	store := options.NewMemoryStore()
	opts = append([]app.Option{
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithStore(store),
	}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	if boot {
		require.NoError(t, a.Boot(context.Background()))
	}
	return a, store
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	a, _ := newTestApp(t, true)
	w := do(t, NewRouter(a), http.MethodGet, "/v1/squad/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "loaded", resp.Phase)
	assert.False(t, resp.Degraded)
	assert.True(t, resp.Requirements.Met)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	a, _ := newTestApp(t, true)
	req := httptest.NewRequest(http.MethodGet, "/v1/squad/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	NewRouter(a).ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

// =============================================================================
// Extensions
// =============================================================================

func TestListExtensions(t *testing.T) {
	a, _ := newTestApp(t, true)
	w := do(t, NewRouter(a), http.MethodGet, "/v1/squad/extensions", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ExtensionsResponse](t, w)
	assert.Len(t, resp.Extensions, 4)
	assert.ElementsMatch(t, []string{builtin.FontUpload, builtin.DiviLibraryShortcode}, resp.Active)
	assert.ElementsMatch(t, []string{builtin.SVGUpload, builtin.JSONUpload}, resp.Inactive)

	for _, ext := range resp.Extensions {
		if ext.Name == builtin.FontUpload {
			assert.True(t, ext.Active)
			assert.True(t, ext.Loaded)
			assert.Equal(t, "Font Upload", ext.Label)
		}
	}
}

func TestSetExtension(t *testing.T) {
	a, store := newTestApp(t, true)
	router := NewRouter(a)

	w := do(t, router, http.MethodPost, "/v1/squad/extensions/svg_upload/enable", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateChangeResponse](t, w)
	assert.True(t, resp.Changed)
	assert.Contains(t, resp.Active, builtin.SVGUpload)
	assert.NotContains(t, resp.Inactive, builtin.SVGUpload)

	w = do(t, router, http.MethodPost, "/v1/squad/extensions/svg_upload/enable", "")
	assert.False(t, decode[StateChangeResponse](t, w).Changed)

	w = do(t, router, http.MethodPost, "/v1/squad/extensions/font_upload/disable", "")
	resp = decode[StateChangeResponse](t, w)
	assert.True(t, resp.Changed)
	assert.Contains(t, resp.Inactive, builtin.FontUpload)

	// The request end persisted the new partition.
	raw, ok, err := store.Get(context.Background(), a.Memory().OptionKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), builtin.SVGUpload)
	assert.False(t, a.Memory().IsModified())
}

func TestSetExtension_Unknown(t *testing.T) {
	a, _ := newTestApp(t, true)
	w := do(t, NewRouter(a), http.MethodPost, "/v1/squad/extensions/unknown_ext/enable", "")

	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "UNKNOWN_EXTENSION", resp.Code)
	assert.NotContains(t, a.Extensions().Active(), "unknown_ext")
}

func TestResetExtensions(t *testing.T) {
	a, _ := newTestApp(t, true)
	router := NewRouter(a)
	require.True(t, a.Extensions().Enable(builtin.JSONUpload))

	w := do(t, router, http.MethodPost, "/v1/squad/extensions/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateChangeResponse](t, w)
	assert.True(t, resp.Changed)
	assert.ElementsMatch(t, []string{builtin.FontUpload, builtin.DiviLibraryShortcode}, resp.Active)
}

// =============================================================================
// Memory
// =============================================================================

func TestMemoryRoundTrip(t *testing.T) {
	a, store := newTestApp(t, true)
	router := NewRouter(a)

	w := do(t, router, http.MethodGet, "/v1/squad/memory/form_id_original_42", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "KEY_NOT_FOUND", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPut, "/v1/squad/memory/form_id_original_42", `{"value":"contact"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[MemoryWriteResponse](t, w).Changed)

	w = do(t, router, http.MethodPut, "/v1/squad/memory/form_id_original_42", `{"value":"contact"}`)
	assert.False(t, decode[MemoryWriteResponse](t, w).Changed)

	w = do(t, router, http.MethodGet, "/v1/squad/memory/form_id_original_42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "contact", decode[MemoryValue](t, w).Value)

	raw, ok, err := store.Get(context.Background(), "divi-squad-settings")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"form_id_original_42":"contact"`)

	w = do(t, router, http.MethodDelete, "/v1/squad/memory/form_id_original_42", "")
	assert.True(t, decode[MemoryWriteResponse](t, w).Changed)
	w = do(t, router, http.MethodDelete, "/v1/squad/memory/form_id_original_42", "")
	assert.False(t, decode[MemoryWriteResponse](t, w).Changed)
}

func TestPutMemory_InvalidBody(t *testing.T) {
	a, _ := newTestApp(t, true)
	router := NewRouter(a)

	for _, body := range []string{`{`, `{"other":1}`} {
		w := do(t, router, http.MethodPut, "/v1/squad/memory/k", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, w).Code)
	}
	assert.False(t, a.Memory().Has("k"))
}

func TestMutationsAreRateLimited(t *testing.T) {
	a, _ := newTestAppWith(t, true, func(cfg *config.Config) {
		cfg.Server.MutationRate = 0.001
		cfg.Server.MutationBurst = 1
	})
	router := NewRouter(a)

	w := do(t, router, http.MethodPut, "/v1/squad/memory/k", `{"value":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/v1/squad/extensions/svg_upload/enable", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
	assert.False(t, a.Extensions().IsActive("svg_upload"))

	// Reads are not limited.
	w = do(t, router, http.MethodGet, "/v1/squad/memory/k", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// Cache
// =============================================================================

func TestCacheStats(t *testing.T) {
	a, _ := newTestApp(t, true)
	ctx := context.Background()
	a.Cache().Set(ctx, "k", "v", "", 0)
	a.Cache().Get(ctx, "k", "", false)
	a.Cache().Get(ctx, "missing", "", false)
	before := a.Cache().Stats()

	w := do(t, NewRouter(a), http.MethodGet, "/v1/squad/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CacheStatsResponse](t, w)
	assert.Equal(t, before.Hits, resp.Hits)
	assert.Equal(t, before.Misses, resp.Misses)
	assert.InDelta(t, before.HitRate(), resp.HitRate, 0.0001)
	assert.False(t, resp.External)
	assert.Equal(t, "divi-squad", resp.DefaultGroup)
}

// =============================================================================
// Assets
// =============================================================================

func TestResolve(t *testing.T) {
	a, _ := newTestApp(t, true)
	router := NewRouter(a)

	w := do(t, router, http.MethodGet, "/v1/squad/assets/resolve?file=divider.js&dep=jquery", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ResolveResponse](t, w)
	assert.Equal(t, "url", resp.Mode)
	assert.Equal(t, testBaseURL+"/build/scripts/divider.js", resp.Target)
	assert.Equal(t, resp.Target, resp.URL)
	assert.Equal(t, []string{"jquery"}, resp.Dependencies)
	assert.False(t, resp.Exists)

	w = do(t, router, http.MethodGet, "/v1/squad/assets/resolve?file=divider.js&mode=logical", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "build/scripts/divider.js", decode[ResolveResponse](t, w).Target)
}

func TestResolve_BadQuery(t *testing.T) {
	a, _ := newTestApp(t, true)
	router := NewRouter(a)

	for _, target := range []string{
		"/v1/squad/assets/resolve",
		"/v1/squad/assets/resolve?file=divider.js&mode=ftp",
	} {
		w := do(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

// =============================================================================
// Preview and Metrics
// =============================================================================

func TestPreview(t *testing.T) {
	provider := func(_ context.Context, page *assets.Page) error {
		page.Registry.RegisterStyle("divider", assets.Descriptor{File: "divider.css"}, "")
		page.Registry.EnqueueStyle("divider")
		page.BodyClasses.Add("divider")
		return nil
	}
	a, _ := newTestApp(t, false, app.WithAssetProvider(provider))
	router := NewRouter(a)

	w := do(t, router, http.MethodGet, "/v1/squad/preview", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, a.Boot(context.Background()))
	w = do(t, router, http.MethodGet, "/v1/squad/preview?class=home", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `<body class="home divi-squad-divider">`)
	assert.Contains(t, body, testBaseURL+"/build/styles/divider.css")
	assert.Contains(t, body, "var DiviSquadExtra")
	assert.NotEmpty(t, w.Header().Get("X-Squad-Page"))
}

func TestMetrics(t *testing.T) {
	a, _ := newTestApp(t, true)
	w := do(t, NewRouter(a), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// Server
// =============================================================================

func TestServer_ServeStopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t, true)
	srv := NewServer(a, config.Default().Server)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/v1/squad/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// =============================================================================
// Auth
// =============================================================================

func TestRequireToken(t *testing.T) {
	a, _ := newTestAppWith(t, true, func(cfg *config.Config) {
		cfg.Server.Token = "s3cret"
	})
	router := NewRouter(a)

	w := do(t, router, http.MethodGet, "/v1/squad/health", "")
	assert.Equal(t, http.StatusOK, w.Code, "health stays open")

	w = do(t, router, http.MethodGet, "/v1/squad/extensions", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[ErrorResponse](t, w).Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
		{"scheme is case-insensitive", "bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/squad/extensions", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// =============================================================================
// Uploads, shortcodes and layouts
// =============================================================================

func uploadRequest(t *testing.T, router http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/squad/uploads/check", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploads(t *testing.T) {
	a, _ := newTestApp(t, false)
	require.True(t, a.Extensions().Enable(builtin.SVGUpload))
	require.NoError(t, a.Boot(context.Background()))
	router := NewRouter(a)

	w := do(t, router, http.MethodGet, "/v1/squad/uploads/types", "")
	require.Equal(t, http.StatusOK, w.Code)
	types := decode[UploadTypesResponse](t, w).Types
	assert.Equal(t, "font/woff2", types["woff2"])
	assert.Equal(t, "image/svg+xml", types["svg"])

	w = uploadRequest(t, router, "brand.woff2", "wOF2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, UploadCheckResponse{Filename: "brand.woff2", MIME: "font/woff2", Size: 4}, decode[UploadCheckResponse](t, w))

	w = uploadRequest(t, router, "logo.svg", `<svg><script>alert(1)</script></svg>`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "UPLOAD_REJECTED", decode[ErrorResponse](t, w).Code)

	w = uploadRequest(t, router, "tool.exe", "MZ")
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "UPLOAD_NOT_ALLOWED", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, "/v1/squad/uploads/check", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLayoutsAndLibraryShortcode(t *testing.T) {
	a, _ := newTestApp(t, true)
	router := NewRouter(a)

	w := do(t, router, http.MethodGet, "/v1/squad/shortcodes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[ShortcodesResponse](t, w).Tags, builtin.LibraryShortcodeTag)

	w = do(t, router, http.MethodPut, "/v1/squad/layouts/42", `{"content":"<p>saved</p>"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/v1/squad/layouts/42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Layout{ID: "42", Content: "<p>saved</p>"}, decode[Layout](t, w))

	render := "/v1/squad/shortcodes/" + builtin.LibraryShortcodeTag + "/render"
	w = do(t, router, http.MethodPost, render, `{"attrs":{"id":"42"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		`<div class="divi-squad-library-layout" data-layout-id="42"><p>saved</p></div>`,
		decode[ShortcodeRenderResponse](t, w).HTML)

	w = do(t, router, http.MethodPost, render, `{"attrs":{"id":"../x"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_LAYOUT_ID", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, "/v1/squad/shortcodes/nope/render", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "UNKNOWN_SHORTCODE", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodDelete, "/v1/squad/layouts/42", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, "/v1/squad/layouts/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
