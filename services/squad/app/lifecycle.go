// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/SquadModules/services/squad/assets"
)

// Phase names a lifecycle stage.
type Phase string

// Lifecycle phases in order.
const (
	PhaseNew      Phase = "new"
	PhaseInit     Phase = "init"
	PhaseLoaded   Phase = "loaded"
	PhaseEnqueue  Phase = "enqueue"
	PhaseShutdown Phase = "shutdown"
)

// Hook runs during a phase. Hooks for one phase run in registration order
// and the first error stops the phase.
type Hook func(ctx context.Context, a *App) error

// AssetProvider registers and enqueues a page's assets during the enqueue
// phase. Providers run in registration order for every page.
type AssetProvider func(ctx context.Context, page *assets.Page) error

// Phase returns the furthest phase reached.
func (a *App) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *App) runHooks(ctx context.Context, phase Phase) error {
	for i, fn := range a.hooks[phase] {
		if err := fn(ctx, a); err != nil {
			return fmt.Errorf("%s hook %d: %w", phase, i, err)
		}
	}
	return nil
}

// Boot loads the runtime.
//
// Description:
//
//	Runs init hooks, loads Memory (a load failure is logged and the empty
//	document is used), then either logs the limited-mode notice or loads
//	extensions and starts the build watcher when configured. Loaded hooks
//	run last. Calling Boot again is a no-op.
//
// Outputs:
//
//	error - A hook error, or ErrShutdown.
func (a *App) Boot(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	switch a.Phase() {
	case PhaseShutdown:
		return ErrShutdown
	case PhaseNew:
	default:
		return nil
	}

	a.setPhase(PhaseInit)
	if err := a.runHooks(ctx, PhaseInit); err != nil {
		return err
	}

	if err := a.memory.Load(ctx); err != nil {
		a.logger.Warn("memory load failed, using empty settings", slog.String("error", err.Error()))
	}

	if a.Degraded() {
		a.logger.Warn(a.reqs.Notice(),
			slog.String("builder_version", a.reqs.BuilderVersion),
			slog.String("min_version", a.reqs.MinVersion),
		)
	} else {
		report := a.extensions.Load(ctx)
		a.mu.Lock()
		a.report = report
		a.mu.Unlock()
		a.logger.Info("extensions loaded",
			slog.Int("loaded", len(report.Loaded)),
			slog.Int("skipped", len(report.Skipped)),
			slog.Int("failed", len(report.Failed)),
		)
		if a.cfg.Assets.Watch {
			a.startWatcher(ctx)
		}
	}

	a.setPhase(PhaseLoaded)
	return a.runHooks(ctx, PhaseLoaded)
}

func (a *App) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *App) startWatcher(ctx context.Context) {
	w, err := assets.WatchResolver(a.resolver, assets.DefaultDebounce, a.logger)
	if err != nil {
		a.logger.Warn("build watcher unavailable", slog.String("error", err.Error()))
		return
	}
	if err := w.Start(ctx); err != nil {
		a.logger.Warn("build watcher failed to start", slog.String("error", err.Error()))
		w.Stop()
		return
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
}

// NewPage creates the asset output for one request.
//
// Description:
//
//	Each page gets its own Registry, Localization and BodyClasses sharing
//	the App's Resolver. Asset providers run unless the App is degraded; a
//	provider error is logged and the remaining providers still run.
//
// Outputs:
//
//	*assets.Page - The composed page.
//	error - ErrNotBooted or ErrShutdown.
func (a *App) NewPage(ctx context.Context) (*assets.Page, error) {
	switch a.Phase() {
	case PhaseNew, PhaseInit:
		return nil, ErrNotBooted
	case PhaseShutdown:
		return nil, ErrShutdown
	}

	prefix := a.cfg.Prefix
	loc := assets.NewLocalization(a.logger)
	reg := assets.NewRegistry(prefix, a.resolver, loc, a.logger)
	reg.AddHostHandles(a.cfg.Assets.HostHandles...)

	page := assets.NewPage(prefix, reg, loc, assets.NewBodyClasses(prefix), assets.GlobalObject{
		Name:      a.cfg.Assets.GlobalObject,
		Version:   a.cfg.Version,
		AssetsURL: a.assetsURL(),
		RESTURL:   a.cfg.Assets.RESTURL,
		DevMode:   a.cfg.DevMode,
	})

	if a.Degraded() {
		return page, nil
	}

	a.mu.Lock()
	if a.phase == PhaseLoaded {
		a.phase = PhaseEnqueue
	}
	a.mu.Unlock()

	for i, provide := range a.providers {
		if err := provide(ctx, page); err != nil {
			a.logger.Warn("asset provider failed",
				slog.Int("provider", i),
				slog.String("page", page.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
	return page, nil
}

func (a *App) assetsURL() string {
	build := a.cfg.Assets.BuildDir
	if build == "" {
		build = assets.DefaultBuildDir
	}
	return strings.TrimRight(a.cfg.Assets.BaseURL, "/") + "/" + strings.Trim(build, "/")
}

// EndRequest persists Memory when it has unsaved changes.
func (a *App) EndRequest(ctx context.Context) error {
	if !a.memory.IsModified() {
		return nil
	}
	if err := a.memory.Sync(ctx); err != nil {
		return fmt.Errorf("sync memory: %w", err)
	}
	return nil
}

// Shutdown runs shutdown hooks, syncs Memory, stops the watcher and closes
// owned storage. Every step runs even when an earlier one fails; the
// errors are joined. Calling Shutdown again is a no-op.
func (a *App) Shutdown(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.phase == PhaseShutdown {
		a.mu.Unlock()
		return nil
	}
	a.phase = PhaseShutdown
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	var errs []error
	if err := a.runHooks(ctx, PhaseShutdown); err != nil {
		errs = append(errs, err)
	}
	if err := a.EndRequest(ctx); err != nil {
		errs = append(errs, err)
	}
	if watcher != nil {
		watcher.Stop()
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
