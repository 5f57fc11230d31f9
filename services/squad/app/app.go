// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package app assembles the Squad runtime and drives its lifecycle.
//
// An App is built explicitly from a config.Config and passed to whatever
// needs it; there is no package-level instance.
//
//	┌────────────┐   ┌─────────┐   ┌──────────┐   ┌────────────┐
//	│ New        │──▶│ Boot    │──▶│ NewPage  │──▶│ EndRequest │
//	│ (wire all) │   │ init    │   │ enqueue  │   │ sync dirty │
//	└────────────┘   │ loaded  │   └──────────┘   └────────────┘
//	                 └─────────┘        ...          Shutdown
//
// When the host requirements are not met the App boots degraded: Memory
// and Cache work, extensions are not loaded and pages carry no assets.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AleutianAI/SquadModules/pkg/logging"
	"github.com/AleutianAI/SquadModules/services/squad/assets"
	"github.com/AleutianAI/SquadModules/services/squad/cache"
	"github.com/AleutianAI/SquadModules/services/squad/config"
	"github.com/AleutianAI/SquadModules/services/squad/extensions"
	"github.com/AleutianAI/SquadModules/services/squad/extensions/builtin"
	"github.com/AleutianAI/SquadModules/services/squad/memory"
	"github.com/AleutianAI/SquadModules/services/squad/objectcache"
	"github.com/AleutianAI/SquadModules/services/squad/options"
	"github.com/AleutianAI/SquadModules/services/squad/requirements"
	squadbadger "github.com/AleutianAI/SquadModules/services/squad/storage/badger"
)

var (
	// ErrNotBooted is returned by operations that need a booted App.
	ErrNotBooted = errors.New("app not booted")

	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("app shut down")
)

// =============================================================================
// Options
// =============================================================================

// Option configures New.
type Option func(*App)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStore injects the option store. The App does not close an injected
// store.
func WithStore(store options.Store) Option {
	return func(a *App) { a.store = store }
}

// WithBackend injects the object cache backend.
func WithBackend(backend objectcache.Backend) Option {
	return func(a *App) { a.backend = backend }
}

// WithFactories replaces the built-in extension factories.
func WithFactories(factories map[string]extensions.Factory) Option {
	return func(a *App) { a.factories = factories }
}

// WithDefinitions replaces the configured extension definitions.
func WithDefinitions(defs []extensions.Definition) Option {
	return func(a *App) { a.definitions = defs }
}

// WithLayoutSource replaces the option-store layouts read by the library
// shortcode. Layouts saved through Layouts still go to the option store.
func WithLayoutSource(src extensions.LayoutSource) Option {
	return func(a *App) { a.layoutSource = src }
}

// WithAssetProvider appends enqueue-phase providers.
func WithAssetProvider(providers ...AssetProvider) Option {
	return func(a *App) { a.providers = append(a.providers, providers...) }
}

// OnPhase appends a callback for an init, loaded or shutdown phase.
func OnPhase(phase Phase, fn Hook) Option {
	return func(a *App) { a.hooks[phase] = append(a.hooks[phase], fn) }
}

// =============================================================================
// App
// =============================================================================

// App is the runtime context.
//
// Thread Safety: Boot and Shutdown are serialized; NewPage, EndRequest and
// the accessors are safe for concurrent use.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store     options.Store
	ownsStore bool
	backend   objectcache.Backend
	cacheDB   *squadbadger.DB

	cache      *cache.Cache
	memory     *memory.Memory
	resolver   *assets.Resolver
	watcher    *assets.Watcher
	extensions *extensions.Manager
	reqs       requirements.Result

	layouts      *extensions.OptionLayouts
	layoutSource extensions.LayoutSource

	factories   map[string]extensions.Factory
	definitions []extensions.Definition
	providers   []AssetProvider
	hooks       map[Phase][]Hook

	lifecycle sync.Mutex
	mu        sync.Mutex
	phase     Phase
	report    extensions.LoadReport
}

// New wires every component from cfg.
//
// Description:
//
//	Opens the option store and object cache backend selected by cfg unless
//	injected, then builds Cache, Memory, the asset Resolver and the
//	extensions Manager, registers definitions and runs the requirements
//	check. Settings are not read, migrated or written until Boot.
//
// Inputs:
//
//	ctx - Checked for cancellation before anything is opened.
//	cfg - Validated configuration.
//	opts - Optional overrides.
//
// Outputs:
//
//	*App - Ready to Boot.
//	error - Invalid config, store or backend open failure, or invalid
//	extension definitions. Resources opened before the failure are closed.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		hooks:  map[Phase][]Hook{},
		phase:  PhaseNew,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.openStorage(); err != nil {
		a.closeStorage()
		return nil, err
	}

	cacheOpts := []cache.Option{cache.WithLogger(logging.Component(a.logger, "cache"))}
	if cfg.Cache.DefaultGroup != "" {
		cacheOpts = append(cacheOpts, cache.WithDefaultGroup(cfg.Cache.DefaultGroup))
	}
	if cfg.Cache.DefaultTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithDefaultTTL(cfg.Cache.DefaultTTL))
	}
	a.cache = cache.New(a.backend, cacheOpts...)

	a.memory = memory.New(a.store,
		memory.WithPrefix(cfg.Prefix),
		memory.WithCache(a.cache),
		memory.WithLegacyKeys(cfg.Memory.LegacyKeys...),
		memory.WithLogger(logging.Component(a.logger, "memory")),
	)

	resolverOpts := []assets.ResolverOption{assets.WithResolverLogger(logging.Component(a.logger, "assets"))}
	if cfg.Assets.Memo {
		resolverOpts = append(resolverOpts, assets.WithMemo())
	}
	a.resolver = assets.NewResolver(assets.ResolverConfig{
		RootDir:      cfg.Assets.RootDir,
		BaseURL:      cfg.Assets.BaseURL,
		BuildDir:     cfg.Assets.BuildDir,
		Version:      cfg.Version,
		DevMode:      cfg.DevMode,
		OptionalDeps: cfg.Assets.OptionalDeps,
	}, resolverOpts...)

	a.layouts = extensions.NewOptionLayouts(a.store, cfg.Prefix)
	if a.layoutSource == nil {
		a.layoutSource = a.layouts
	}
	extLogger := logging.Component(a.logger, "extensions")
	host := extensions.NewHost(extLogger)
	host.Layouts = a.layoutSource

	a.extensions = extensions.NewManager(a.memory,
		extensions.WithLogger(extLogger),
		extensions.WithActivePlugins(cfg.Host.ActivePlugins...),
		extensions.WithHost(host),
	)
	if err := a.registerExtensions(); err != nil {
		a.closeStorage()
		return nil, err
	}

	a.reqs = requirements.Check(requirements.Host{
		BuilderVersion:    cfg.Host.BuilderVersion,
		MinBuilderVersion: cfg.Host.MinBuilderVersion,
		ActivePlugins:     cfg.Host.ActivePlugins,
		RequiredPlugins:   cfg.Host.RequiredPlugins,
	})

	return a, nil
}

func (a *App) openStorage() error {
	if a.store == nil {
		store, err := options.Open(options.Config{
			Driver: a.cfg.Storage.Driver,
			Path:   a.cfg.Storage.Path,
			Logger: logging.Component(a.logger, "options"),
		})
		if err != nil {
			return fmt.Errorf("open option store: %w", err)
		}
		a.store = store
		a.ownsStore = true
	}

	if a.backend != nil {
		return nil
	}
	switch strings.ToLower(a.cfg.Cache.Backend) {
	case "badger":
		var (
			db  *squadbadger.DB
			err error
		)
		if a.cfg.Cache.Path == "" {
			db, err = squadbadger.OpenInMemory()
		} else {
			bcfg := squadbadger.DefaultConfig(a.cfg.Cache.Path)
			bcfg.Logger = logging.Component(a.logger, "objectcache")
			db, err = squadbadger.Open(bcfg)
		}
		if err != nil {
			return fmt.Errorf("open cache backend: %w", err)
		}
		a.cacheDB = db
		a.backend = objectcache.NewBadger(db)
	default:
		a.backend = objectcache.NewMemory()
	}
	return nil
}

func (a *App) registerExtensions() error {
	defs := a.definitions
	if defs == nil {
		var err error
		if path := a.cfg.Extensions.DefinitionsFile; path != "" {
			defs, err = extensions.LoadDefinitionsFile(path)
		} else {
			defs, err = extensions.DefaultDefinitions()
		}
		if err != nil {
			return fmt.Errorf("load extension definitions: %w", err)
		}
	}
	factories := a.factories
	if factories == nil {
		factories = builtin.Factories()
	}
	if err := a.extensions.RegisterDefinitions(defs, factories); err != nil {
		return fmt.Errorf("register extensions: %w", err)
	}
	return nil
}

func (a *App) closeStorage() error {
	var errs []error
	if a.ownsStore && a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close option store: %w", err))
		}
		a.store = nil
	}
	if a.cacheDB != nil {
		if err := a.cacheDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache backend: %w", err))
		}
		a.cacheDB = nil
	}
	return errors.Join(errs...)
}

// =============================================================================
// Accessors
// =============================================================================

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Memory returns the settings document.
func (a *App) Memory() *memory.Memory { return a.memory }

// Cache returns the object cache facade.
func (a *App) Cache() *cache.Cache { return a.cache }

// Resolver returns the shared asset resolver.
func (a *App) Resolver() *assets.Resolver { return a.resolver }

// Extensions returns the extensions manager.
func (a *App) Extensions() *extensions.Manager { return a.extensions }

// Host returns the services loaded extensions registered into: the upload
// allow-list, shortcodes and the layout source.
func (a *App) Host() *extensions.Host { return a.extensions.Host() }

// Layouts returns the option-store layouts.
func (a *App) Layouts() *extensions.OptionLayouts { return a.layouts }

// Requirements returns the host requirement check result.
func (a *App) Requirements() requirements.Result { return a.reqs }

// Degraded reports whether the host requirements are unmet.
func (a *App) Degraded() bool { return !a.reqs.Met }

// Watcher returns the build watcher, or nil when not watching.
func (a *App) Watcher() *assets.Watcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watcher
}

// LoadReport returns the extension load report from Boot.
func (a *App) LoadReport() extensions.LoadReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}
