// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// ScriptArgs are the script-specific registration arguments.
type ScriptArgs struct {
	// InFooter prints the script at the end of the body.
	InFooter bool `json:"in_footer" yaml:"in_footer"`

	// Strategy is "defer", "async" or empty.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// Localize is the optional data payload of EnqueueScript.
type Localize struct {
	// ObjectName is the JavaScript global. Default: lowerCamel of the full
	// handle.
	ObjectName string

	Data map[string]any
}

// Asset is a registered script or style.
type Asset struct {
	Handle     string     `json:"handle"`
	FullHandle string     `json:"full_handle"`
	Kind       Kind       `json:"kind"`
	Descriptor Descriptor `json:"descriptor"`
	Resolved   Resolved   `json:"resolved"`
	Media      string     `json:"media,omitempty"`
	Args       ScriptArgs `json:"args"`
	Enqueued   bool       `json:"enqueued"`
}

// Registry maps short handles to resolved assets.
//
// # Description
//
// Registration resolves the descriptor and records it under the short
// handle; the printed handle is "<prefix>-<handle>" unless the descriptor
// opts out. Enqueueing requires a prior registration. Resolution failures
// are logged and reported as false.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	prefix       string
	resolver     *Resolver
	localization *Localization
	logger       *slog.Logger

	mu          sync.RWMutex
	scripts     map[string]*Asset
	styles      map[string]*Asset
	scriptQueue []string
	styleQueue  []string
	hostHandles map[string]bool
}

// NewRegistry creates a Registry. Optional dependencies survive
// resolution once this registry (or the host) knows their handle.
func NewRegistry(prefix string, resolver *Resolver, localization *Localization, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		prefix:       prefix,
		resolver:     resolver,
		localization: localization,
		logger:       logger,
		scripts:      map[string]*Asset{},
		styles:       map[string]*Asset{},
		hostHandles:  map[string]bool{},
	}
	return r
}

// AddHostHandles records handles the host registers on its own, such as
// "jquery" or "wp-polyfill".
func (r *Registry) AddHostHandles(handles ...string) {
	r.mu.Lock()
	for _, h := range handles {
		r.hostHandles[h] = true
	}
	r.mu.Unlock()
}

// IsHandleKnown reports whether a full handle is registered here or by the
// host.
func (r *Registry) IsHandleKnown(fullHandle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hostHandles[fullHandle] {
		return true
	}
	for _, m := range []map[string]*Asset{r.scripts, r.styles} {
		for _, a := range m {
			if a.FullHandle == fullHandle {
				return true
			}
		}
	}
	return false
}

// FullHandle returns the printed handle for a short handle.
func (r *Registry) FullHandle(handle string, d Descriptor) string {
	if d.NoPrefix || r.prefix == "" {
		return handle
	}
	return r.prefix + "-" + handle
}

// RegisterScript resolves d and records it under handle. Re-registration
// overwrites but keeps the enqueue state.
func (r *Registry) RegisterScript(handle string, d Descriptor, args ScriptArgs) bool {
	return r.register(KindScript, handle, d, "", args)
}

// RegisterStyle resolves d and records it under handle. Empty media means
// "all".
func (r *Registry) RegisterStyle(handle string, d Descriptor, media string) bool {
	if media == "" {
		media = "all"
	}
	return r.register(KindStyle, handle, d, media, ScriptArgs{})
}

func (r *Registry) register(kind Kind, handle string, d Descriptor, media string, args ScriptArgs) bool {
	if handle == "" {
		r.logger.Error("asset registration without handle", slog.String("kind", string(kind)))
		return false
	}
	resolved, err := r.resolver.process(d, nil, r.IsHandleKnown)
	if err != nil {
		r.logger.Error("asset registration failed",
			slog.String("kind", string(kind)),
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
		return false
	}

	asset := &Asset{
		Handle:     handle,
		FullHandle: r.FullHandle(handle, d),
		Kind:       kind,
		Descriptor: d,
		Resolved:   resolved,
		Media:      media,
		Args:       args,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.mapFor(kind)
	if prev, ok := m[handle]; ok {
		asset.Enqueued = prev.Enqueued
	}
	m[handle] = asset
	return true
}

// EnqueueScript marks a registered script for output. A non-nil loc routes
// its data to the Localization registry.
func (r *Registry) EnqueueScript(handle string, loc *Localize) bool {
	r.mu.Lock()
	asset, ok := r.scripts[handle]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if !asset.Enqueued {
		asset.Enqueued = true
		r.scriptQueue = append(r.scriptQueue, handle)
	}
	fullHandle := asset.FullHandle
	r.mu.Unlock()

	if loc != nil && r.localization != nil {
		name := loc.ObjectName
		if name == "" {
			name = DefaultObjectName(fullHandle)
		}
		if !r.localization.Add(name, loc.Data) {
			r.logger.Warn("localization object name rejected",
				slog.String("handle", handle),
				slog.String("object", name),
			)
		}
	}
	return true
}

// EnqueueStyle marks a registered style for output.
func (r *Registry) EnqueueStyle(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.styles[handle]
	if !ok {
		return false
	}
	if !asset.Enqueued {
		asset.Enqueued = true
		r.styleQueue = append(r.styleQueue, handle)
	}
	return true
}

// DeregisterScript removes a script. Returns false when unknown.
func (r *Registry) DeregisterScript(handle string) bool {
	return r.deregister(KindScript, handle)
}

// DeregisterStyle removes a style. Returns false when unknown.
func (r *Registry) DeregisterStyle(handle string) bool {
	return r.deregister(KindStyle, handle)
}

func (r *Registry) deregister(kind Kind, handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.mapFor(kind)
	if _, ok := m[handle]; !ok {
		return false
	}
	delete(m, handle)
	if kind == KindScript {
		r.scriptQueue = without(r.scriptQueue, handle)
	} else {
		r.styleQueue = without(r.styleQueue, handle)
	}
	return true
}

// IsScriptRegistered reports whether handle is a registered script.
func (r *Registry) IsScriptRegistered(handle string) bool {
	_, ok := r.lookup(KindScript, handle)
	return ok
}

// IsStyleRegistered reports whether handle is a registered style.
func (r *Registry) IsStyleRegistered(handle string) bool {
	_, ok := r.lookup(KindStyle, handle)
	return ok
}

// IsScriptEnqueued reports whether handle is an enqueued script.
func (r *Registry) IsScriptEnqueued(handle string) bool {
	a, ok := r.lookup(KindScript, handle)
	return ok && a.Enqueued
}

// IsStyleEnqueued reports whether handle is an enqueued style.
func (r *Registry) IsStyleEnqueued(handle string) bool {
	a, ok := r.lookup(KindStyle, handle)
	return ok && a.Enqueued
}

// Asset returns a copy of a registered asset.
func (r *Registry) Asset(kind Kind, handle string) (Asset, bool) {
	return r.lookup(kind, handle)
}

// AssetVersion returns the resolved version, or "" when unknown.
func (r *Registry) AssetVersion(kind Kind, handle string) string {
	a, _ := r.lookup(kind, handle)
	return a.Resolved.Version
}

// AssetDependencies returns the resolved dependencies, or nil when
// unknown.
func (r *Registry) AssetDependencies(kind Kind, handle string) []string {
	a, ok := r.lookup(kind, handle)
	if !ok {
		return nil
	}
	return append([]string(nil), a.Resolved.Dependencies...)
}

// AssetURL returns the resolved URL, or "" when unknown.
func (r *Registry) AssetURL(kind Kind, handle string) string {
	a, _ := r.lookup(kind, handle)
	return a.Resolved.URL
}

// Scripts returns the enqueued scripts in output order: enqueue order,
// with registered dependencies placed before their dependents.
func (r *Registry) Scripts() []Asset {
	return r.ordered(KindScript)
}

// Styles returns the enqueued styles in output order.
func (r *Registry) Styles() []Asset {
	return r.ordered(KindStyle)
}

func (r *Registry) ordered(kind Kind) []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.mapFor(kind)
	queue := r.scriptQueue
	if kind == KindStyle {
		queue = r.styleQueue
	}
	byFull := make(map[string]*Asset, len(m))
	for _, a := range m {
		byFull[a.FullHandle] = a
	}

	var out []Asset
	done := map[string]bool{}
	var visit func(a *Asset)
	visit = func(a *Asset) {
		if done[a.FullHandle] {
			return
		}
		done[a.FullHandle] = true
		for _, dep := range a.Resolved.Dependencies {
			if d, ok := byFull[dep]; ok {
				visit(d)
			}
		}
		out = append(out, *a)
	}
	for _, handle := range queue {
		if a, ok := m[handle]; ok {
			visit(a)
		}
	}
	return out
}

func (r *Registry) lookup(kind Kind, handle string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.mapFor(kind)
	if m == nil {
		return Asset{}, false
	}
	a, ok := m[handle]
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// mapFor must be called with mu held.
func (r *Registry) mapFor(kind Kind) map[string]*Asset {
	switch kind {
	case KindScript:
		return r.scripts
	case KindStyle:
		return r.styles
	default:
		return nil
	}
}

// DefaultObjectName converts a handle such as "divi-squad-divider" to
// "diviSquadDivider".
func DefaultObjectName(handle string) string {
	parts := strings.FieldsFunc(handle, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for i, p := range parts {
		if i == 0 {
			b.WriteString(strings.ToLower(p))
			continue
		}
		runes := []rune(strings.ToLower(p))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	name := b.String()
	if name != "" && unicode.IsDigit([]rune(name)[0]) {
		name = "_" + name
	}
	return name
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}
