// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions manages the optional feature bundles of the plugin.
//
// Every registered extension is in exactly one of two sets, active or
// inactive. The sets are persisted in the settings document under
// "active_extensions" and "inactive_extensions"; an extension absent from
// both falls back to its declared default. At boot, Load builds every
// active extension whose host plugin requirements hold, exactly once.
//
// Extensions are built from factories registered under a stable key (the
// definition's root_class), so an unknown key is caught at registration
// rather than at load.
package extensions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/SquadModules/services/squad/memory"
)

// Settings document keys holding the two sets.
const (
	KeyActive   = "active_extensions"
	KeyInactive = "inactive_extensions"
)

var (
	// ErrInvalidDefinition is returned for a definition failing validation.
	ErrInvalidDefinition = errors.New("invalid extension definition")

	// ErrDuplicateExtension is returned when a name is registered twice.
	ErrDuplicateExtension = errors.New("duplicate extension")

	// ErrNilFactory is returned when an extension has no factory.
	ErrNilFactory = errors.New("extension factory is nil")

	// ErrUnknownFactory is returned when no factory matches root_class.
	ErrUnknownFactory = errors.New("unknown extension factory")

	// ErrUnknownExtension is returned for names never registered.
	ErrUnknownExtension = errors.New("unknown extension")

	// ErrUploadNotAllowed is returned for file types outside the allow-list.
	ErrUploadNotAllowed = errors.New("upload type not allowed")

	// ErrUploadRejected is returned when a content check fails.
	ErrUploadRejected = errors.New("upload rejected")

	// ErrUnknownShortcode is returned when rendering an unregistered tag.
	ErrUnknownShortcode = errors.New("unknown shortcode")
)

// Extension is a loaded feature bundle.
type Extension interface {
	Name() string
	Load(ctx context.Context, host *Host) error
}

// Factory builds an extension.
type Factory func() (Extension, error)

// Load outcomes.
const (
	ResultLoaded  = "loaded"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// LoadReport summarizes one Load call. Maps are keyed by extension name.
type LoadReport struct {
	Loaded  []string          `json:"loaded"`
	Skipped map[string]string `json:"skipped"`
	Failed  map[string]string `json:"failed"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActivePlugins sets the host plugins considered active when checking
// requirements.
func WithActivePlugins(slugs ...string) Option {
	return func(m *Manager) {
		m.plugins = map[string]bool{}
		for _, s := range slugs {
			m.plugins[s] = true
		}
	}
}

// WithHost sets the services handed to extensions on load.
func WithHost(host *Host) Option {
	return func(m *Manager) {
		if host != nil {
			m.host = host
		}
	}
}

// Manager is the extension registry and state machine.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	mem     *memory.Memory
	logger  *slog.Logger
	host    *Host
	plugins map[string]bool

	mu        sync.RWMutex
	defs      map[string]Definition
	order     []string
	factories map[string]Factory
	loaded    map[string]Extension
}

// NewManager creates a Manager whose state lives in mem.
func NewManager(mem *memory.Memory, opts ...Option) *Manager {
	m := &Manager{
		mem:       mem,
		logger:    slog.Default(),
		plugins:   map[string]bool{},
		defs:      map[string]Definition{},
		factories: map[string]Factory{},
		loaded:    map[string]Extension{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.host == nil {
		m.host = NewHost(m.logger)
	}
	return m
}

// Host returns the services handed to extensions.
func (m *Manager) Host() *Host { return m.host }

// =============================================================================
// Registration
// =============================================================================

// Register adds one extension.
//
// Outputs:
//
//	error - ErrInvalidDefinition, ErrDuplicateExtension or ErrNilFactory.
func (m *Manager) Register(def Definition, factory Factory) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, def.Name)
	}

	m.mu.Lock()
	if _, ok := m.defs[def.Name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateExtension, def.Name)
	}
	m.defs[def.Name] = def
	m.order = append(m.order, def.Name)
	m.factories[def.Name] = factory
	m.mu.Unlock()
	return nil
}

// RegisterDefinitions registers every definition with the factory named by
// its root_class. Valid definitions are registered even when others fail;
// the failures are joined into the returned error.
func (m *Manager) RegisterDefinitions(defs []Definition, factories map[string]Factory) error {
	var errs []error
	for _, def := range defs {
		factory, ok := factories[def.Factory]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s (extension %s)", ErrUnknownFactory, def.Factory, def.Name))
			continue
		}
		if err := m.Register(def, factory); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Definitions returns every definition in registration order.
func (m *Manager) Definitions() []Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Definition, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.defs[name])
	}
	return out
}

// Definition returns the definition registered under name.
func (m *Manager) Definition(name string) (Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defs[name]
	return d, ok
}

// =============================================================================
// State
// =============================================================================

// stored reads the persisted sets.
func (m *Manager) stored() (active, inactive map[string]bool) {
	active = toSet(m.mem.GetStringSlice(KeyActive, nil))
	inactive = toSet(m.mem.GetStringSlice(KeyInactive, nil))
	return active, inactive
}

// isActive must be called with mu held (read).
func (m *Manager) isActive(name string, active, inactive map[string]bool) bool {
	switch {
	case active[name]:
		return true
	case inactive[name]:
		return false
	default:
		return m.defs[name].DefaultActive
	}
}

// Active returns the active extension names in registration order.
func (m *Manager) Active() []string {
	active, _ := m.partition()
	return active
}

// Inactive returns the inactive extension names in registration order.
func (m *Manager) Inactive() []string {
	_, inact := m.partition()
	return inact
}

func (m *Manager) partition() (active, inactive []string) {
	storedActive, storedInactive := m.stored()
	m.mu.RLock()
	defer m.mu.RUnlock()
	active, inactive = []string{}, []string{}
	for _, name := range m.order {
		if m.isActive(name, storedActive, storedInactive) {
			active = append(active, name)
		} else {
			inactive = append(inactive, name)
		}
	}
	return active, inactive
}

// IsActive reports whether a registered extension is active. Unknown names
// are never active.
func (m *Manager) IsActive(name string) bool {
	storedActive, storedInactive := m.stored()
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.defs[name]; !ok {
		return false
	}
	return m.isActive(name, storedActive, storedInactive)
}

// Enable moves name into the active set.
//
// Returns false, changing nothing, when name is unknown or already active.
func (m *Manager) Enable(name string) bool {
	return m.transition(name, true)
}

// Disable moves name into the inactive set.
//
// Returns false, changing nothing, when name is unknown or already
// inactive.
func (m *Manager) Disable(name string) bool {
	return m.transition(name, false)
}

func (m *Manager) transition(name string, activate bool) bool {
	m.mu.RLock()
	_, known := m.defs[name]
	m.mu.RUnlock()
	if !known {
		m.logger.Debug("extension state change ignored",
			slog.String("extension", name),
			slog.String("error", ErrUnknownExtension.Error()),
		)
		return false
	}
	if m.IsActive(name) == activate {
		return false
	}

	active, inactive := m.stored()
	if activate {
		active[name] = true
		delete(inactive, name)
	} else {
		inactive[name] = true
		delete(active, name)
	}
	m.persist(active, inactive)
	m.logger.Info("extension state changed",
		slog.String("extension", name),
		slog.Bool("active", activate),
	)
	return true
}

// ResetToDefault sets active to the default-active extensions and inactive
// to the rest, discarding customizations. Returns true when the stored
// sets changed.
func (m *Manager) ResetToDefault() bool {
	active, inactive := map[string]bool{}, map[string]bool{}
	m.mu.RLock()
	for _, name := range m.order {
		if m.defs[name].DefaultActive {
			active[name] = true
		} else {
			inactive[name] = true
		}
	}
	m.mu.RUnlock()
	return m.persist(active, inactive)
}

func (m *Manager) persist(active, inactive map[string]bool) bool {
	changed := m.mem.SetMany(map[string]any{
		KeyActive:   fromSet(active),
		KeyInactive: fromSet(inactive),
	})
	m.updateGauge()
	return changed
}

func (m *Manager) updateGauge() {
	extensionsActive.Set(float64(len(m.Active())))
}

// =============================================================================
// Loading
// =============================================================================

// Load builds every active extension whose requirements hold.
//
// Description:
//
//	Each extension is built at most once per Manager; extensions already
//	loaded are left alone. The requirement check, the factory and the
//	extension's own Load run under recover, so a broken extension is
//	reported as failed without affecting the others.
//
// Outputs:
//
//	LoadReport - What was loaded, skipped and why, and what failed.
func (m *Manager) Load(ctx context.Context) LoadReport {
	report := LoadReport{Loaded: []string{}, Skipped: map[string]string{}, Failed: map[string]string{}}

	active := m.Active()
	extensionsActive.Set(float64(len(active)))
	for _, name := range active {
		if err := ctx.Err(); err != nil {
			report.Skipped[name] = err.Error()
			continue
		}

		m.mu.RLock()
		_, done := m.loaded[name]
		def := m.defs[name]
		factory := m.factories[name]
		m.mu.RUnlock()
		if done {
			continue
		}

		var unmet []string
		if err := safely(func() error {
			unmet = def.RequiredPlugins.Unmet(func(slug string) bool { return m.plugins[slug] })
			return nil
		}); err != nil {
			m.fail(&report, name, fmt.Errorf("requirement check: %w", err))
			continue
		}
		if len(unmet) > 0 {
			reason := "missing required plugin: " + strings.Join(unmet, ", ")
			report.Skipped[name] = reason
			extensionsLoaded.WithLabelValues(name, ResultSkipped).Inc()
			m.logger.Info("extension skipped", slog.String("extension", name), slog.String("reason", reason))
			continue
		}

		var ext Extension
		err := safely(func() error {
			var err error
			if ext, err = factory(); err != nil {
				return err
			}
			if ext == nil {
				return ErrNilFactory
			}
			return ext.Load(ctx, m.host)
		})
		if err != nil {
			m.fail(&report, name, err)
			continue
		}

		m.mu.Lock()
		m.loaded[name] = ext
		m.mu.Unlock()
		report.Loaded = append(report.Loaded, name)
		extensionsLoaded.WithLabelValues(name, ResultLoaded).Inc()
		m.logger.Debug("extension loaded", slog.String("extension", name))
	}
	return report
}

// Loaded returns a loaded extension.
func (m *Manager) Loaded(name string) (Extension, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.loaded[name]
	return ext, ok
}

func (m *Manager) fail(report *LoadReport, name string, err error) {
	report.Failed[name] = err.Error()
	extensionsLoaded.WithLabelValues(name, ResultFailed).Inc()
	m.logger.Error("extension failed to load",
		slog.String("extension", name),
		slog.String("error", err.Error()),
	)
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

func fromSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
