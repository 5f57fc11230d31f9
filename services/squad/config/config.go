// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the Squad runtime configuration.
//
// Values are layered: Default(), then an optional YAML file, then SQUAD_*
// environment variables. The result is validated before it is returned.
//
//	cfg, err := config.Load("squad.yaml")
//	if err != nil {
//	    return fmt.Errorf("load config: %w", err)
//	}
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SQUAD_"

// MaxFileSize caps the config file read by Load.
const MaxFileSize = 1 << 20

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("invalid configuration")

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the root configuration.
type Config struct {
	// Prefix namespaces the option key, cache group, handles and body
	// classes.
	Prefix string `yaml:"prefix" env:"PREFIX" validate:"required,max=64"`

	// Version is the plugin version stamped on assets without a manifest.
	Version string `yaml:"version" env:"VERSION" validate:"required"`

	// DevMode selects development asset files.
	DevMode bool `yaml:"dev_mode" env:"DEV_MODE"`

	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Cache      CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
	Assets     AssetsConfig     `yaml:"assets" envPrefix:"ASSETS_"`
	Memory     MemoryConfig     `yaml:"memory" envPrefix:"MEMORY_"`
	Host       HostConfig       `yaml:"host" envPrefix:"HOST_"`
	Extensions ExtensionsConfig `yaml:"extensions" envPrefix:"EXTENSIONS_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
}

// StorageConfig selects the durable option store.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=memory badger sqlite"`
	Path   string `yaml:"path" env:"PATH" validate:"required_unless=Driver memory"`
}

// CacheConfig selects the object cache backend.
type CacheConfig struct {
	// Backend is "memory" (in-process, not persistent) or "badger".
	Backend string `yaml:"backend" env:"BACKEND" validate:"oneof=memory badger"`

	// Path is the badger directory. Empty runs badger in memory.
	Path string `yaml:"path" env:"PATH"`

	// DefaultGroup replaces the built-in default group name.
	DefaultGroup string `yaml:"default_group" env:"DEFAULT_GROUP"`

	// DefaultTTL applies to Remember calls made without a TTL.
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL" validate:"gte=0"`
}

// AssetsConfig configures the resolver and page output.
type AssetsConfig struct {
	RootDir      string   `yaml:"root_dir" env:"ROOT_DIR" validate:"required"`
	BaseURL      string   `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	BuildDir     string   `yaml:"build_dir" env:"BUILD_DIR"`
	RESTURL      string   `yaml:"rest_url" env:"REST_URL" validate:"omitempty,url"`
	Memo         bool     `yaml:"memo" env:"MEMO"`
	Watch        bool     `yaml:"watch" env:"WATCH"`
	OptionalDeps []string `yaml:"optional_deps" env:"OPTIONAL_DEPS" envSeparator:","`
	HostHandles  []string `yaml:"host_handles" env:"HOST_HANDLES" envSeparator:","`
	GlobalObject string   `yaml:"global_object" env:"GLOBAL_OBJECT" validate:"omitempty,alphanum"`
}

// MemoryConfig configures the settings document.
type MemoryConfig struct {
	// LegacyKeys are option names migrated into the document once.
	LegacyKeys []string `yaml:"legacy_keys" env:"LEGACY_KEYS" envSeparator:","`
}

// HostConfig describes the host environment for the requirements check.
type HostConfig struct {
	BuilderVersion    string   `yaml:"builder_version" env:"BUILDER_VERSION"`
	MinBuilderVersion string   `yaml:"min_builder_version" env:"MIN_BUILDER_VERSION"`
	ActivePlugins     []string `yaml:"active_plugins" env:"ACTIVE_PLUGINS" envSeparator:","`
	RequiredPlugins   []string `yaml:"required_plugins" env:"REQUIRED_PLUGINS" envSeparator:","`
}

// ExtensionsConfig locates extension definitions.
type ExtensionsConfig struct {
	// DefinitionsFile replaces the embedded definitions when set.
	DefinitionsFile string `yaml:"definitions_file" env:"DEFINITIONS_FILE"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json" env:"JSON"`
	Dir   string `yaml:"dir" env:"DIR"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Environment    string `yaml:"environment" env:"ENVIRONMENT"`
	TraceExporter  string `yaml:"trace_exporter" env:"TRACE_EXPORTER" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" env:"METRIC_EXPORTER" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" env:"OTLP_INSECURE"`
}

// ServerConfig configures the admin API.
type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gte=0"`

	// MutationRate limits write requests per second. Zero disables it.
	MutationRate  float64 `yaml:"mutation_rate" env:"MUTATION_RATE" validate:"gte=0"`
	MutationBurst int     `yaml:"mutation_burst" env:"MUTATION_BURST" validate:"gte=0"`

	// Token, when set, is required as a bearer token on every route
	// except health and metrics.
	Token string `yaml:"token" env:"TOKEN"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns a configuration that boots without any file: in-memory
// storage and cache, assets under the working directory.
func Default() Config {
	return Config{
		Prefix:  "divi-squad",
		Version: "3.0.0",
		Storage: StorageConfig{Driver: "memory"},
		Cache:   CacheConfig{Backend: "memory", DefaultTTL: time.Hour},
		Assets: AssetsConfig{
			RootDir:  ".",
			BaseURL:  "http://localhost:8080/wp-content/plugins/squad-modules-for-divi",
			BuildDir: "build",
		},
		Memory: MemoryConfig{LegacyKeys: []string{
			"divi-squad-activation-time",
			"divi-squad-version",
		}},
		Host: HostConfig{
			BuilderVersion:    "4.27.4",
			MinBuilderVersion: "4.14.0",
		},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8787",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  30 * time.Second,
			MutationRate:  5,
			MutationBurst: 10,
		},
	}
}

// Load builds the configuration from defaults, path and environment.
//
// Description:
//
//	An empty path, or a path that does not exist, skips the file layer.
//	Unknown YAML keys are rejected so typos surface at boot.
//
// Inputs:
//
//	path - YAML file path. May be empty.
//
// Outputs:
//
//	Config - The validated configuration.
//	error - Read, parse, env or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("open config: %w", err)
		default:
			defer f.Close()
			if err := Decode(f, &cfg); err != nil {
				return Config{}, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg.
func Decode(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("config exceeds %d bytes", MaxFileSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays SQUAD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
