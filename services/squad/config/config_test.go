// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "squad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "divi-squad", cfg.Prefix)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
prefix: squad-test
storage:
  driver: sqlite
  path: /tmp/options.db
cache:
  default_ttl: 5m
assets:
  optional_deps: [wp-polyfill, lodash]
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "squad-test", cfg.Prefix)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, []string{"wp-polyfill", "lodash"}, cfg.Assets.OptionalDeps)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "prefix: from-file\n")
	t.Setenv("SQUAD_PREFIX", "from-env")
	t.Setenv("SQUAD_DEV_MODE", "true")
	t.Setenv("SQUAD_HOST_ACTIVE_PLUGINS", "woocommerce,contact-form-7")
	t.Setenv("SQUAD_SERVER_ADDR", ":9999")
	t.Setenv("SQUAD_SERVER_TOKEN", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Prefix)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, []string{"woocommerce", "contact-form-7"}, cfg.Host.ActivePlugins)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.Token)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "prefx: typo\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "storage:\n  driver: redis\n", "Driver"},
		{"badger without path", "storage:\n  driver: badger\n", "Path"},
		{"bad base url", "assets:\n  base_url: not a url\n", "BaseURL"},
		{"bad exporter", "telemetry:\n  trace_exporter: zipkin\n", "TraceExporter"},
		{"empty prefix", "prefix: \"\"\n", "Prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecode_RejectsOversizedInput(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader(strings.Repeat("#", MaxFileSize+1)), &cfg)
	require.Error(t, err)
}

func TestDecode_EmptyInputIsNoop(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader("  \n"), &cfg))
	assert.Equal(t, Default(), cfg)
}
