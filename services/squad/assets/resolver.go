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
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/AleutianAI/SquadModules/pkg/hooks"
)

// DefaultPattern is the path template used when a descriptor has none.
const DefaultPattern = "{path_prefix}/{file}.{extension}"

// DefaultBuildDir is the build output root, relative to the plugin root.
const DefaultBuildDir = "build"

// DefaultOptionalDeps are dropped from dependency lists unless registered.
var DefaultOptionalDeps = []string{"wp-polyfill"}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// RootDir is the plugin root on disk.
	RootDir string

	// BaseURL is the public URL of RootDir.
	BaseURL string

	// BuildDir is the build root relative to RootDir. Default: "build".
	BuildDir string

	// Version is the plugin version, used when no manifest provides one.
	Version string

	// DevMode selects development files and skips minified siblings.
	DevMode bool

	// OptionalDeps are dependency handles kept only when registered.
	// nil means DefaultOptionalDeps.
	OptionalDeps []string
}

// PathEvent is passed through ResolverHooks.PathFilter.
type PathEvent struct {
	Descriptor Descriptor
	Mode       Mode
	Path       string
}

// DependenciesEvent is passed through ResolverHooks.DependenciesFilter.
type DependenciesEvent struct {
	Descriptor   Descriptor
	Dependencies []string
}

// VersionEvent is passed through ResolverHooks.VersionFilter.
type VersionEvent struct {
	Descriptor Descriptor
	Version    string
}

// ResolverHooks are the extension points of a Resolver. Filters run on
// every call and are never memoized.
type ResolverHooks struct {
	PathFilter         hooks.Filter[PathEvent]
	DependenciesFilter hooks.Filter[DependenciesEvent]
	VersionFilter      hooks.Filter[VersionEvent]
}

// DependencyChecker reports whether a handle is registered with the host.
type DependencyChecker func(handle string) bool

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger for degraded conditions.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMemo enables memoization of filesystem lookups. Call Invalidate (or
// run a Watcher) when the build changes.
func WithMemo() ResolverOption {
	return func(r *Resolver) { r.memo = map[string]located{} }
}

// WithDependencyChecker sets the checker consulted for optional
// dependencies. Without one, optional dependencies are always dropped.
func WithDependencyChecker(check DependencyChecker) ResolverOption {
	return func(r *Resolver) { r.checker = check }
}

// Resolver turns descriptors into concrete locations.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	Hooks ResolverHooks

	cfg     ResolverConfig
	logger  *slog.Logger
	checker DependencyChecker

	mu   sync.RWMutex
	memo map[string]located
}

// located is the filesystem-dependent part of a resolution.
type located struct {
	logical     string
	local       string
	url         string
	ext         string
	minified    bool
	manifest    Manifest
	hasManifest bool
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig, opts ...ResolverOption) *Resolver {
	if cfg.BuildDir == "" {
		cfg.BuildDir = DefaultBuildDir
	}
	if cfg.OptionalDeps == nil {
		cfg.OptionalDeps = DefaultOptionalDeps
	}
	r := &Resolver{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the resolver configuration.
func (r *Resolver) Config() ResolverConfig { return r.cfg }

// Invalidate drops memoized lookups. A no-op without WithMemo.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	if r.memo != nil {
		r.memo = map[string]located{}
	}
	r.mu.Unlock()
}

// ResolvePath returns the asset location for mode.
//
// Description:
//
//	External descriptors always yield their logical path. The result
//	passes through Hooks.PathFilter.
//
// Outputs:
//
//	string - URL, filesystem path or logical path.
//	error - ErrMissingFile when d.File is empty.
func (r *Resolver) ResolvePath(d Descriptor, mode Mode) (string, error) {
	l, err := r.locate(d)
	if err != nil {
		return "", err
	}
	return r.Hooks.PathFilter.Apply(PathEvent{Descriptor: d, Mode: mode, Path: l.pathFor(d, mode)}).Path, nil
}

// Exists reports whether the resolved file is present on disk.
func (r *Resolver) Exists(d Descriptor) bool {
	l, err := r.locate(d)
	if err != nil {
		return false
	}
	local := l.local
	if d.External {
		local = filepath.Join(r.cfg.RootDir, filepath.FromSlash(l.logical))
	}
	return fileExists(local)
}

// Process resolves URL, path, version and dependencies.
//
// Description:
//
//	The manifest next to the selected file overrides the plugin version;
//	its dependencies are unioned, in order, after d.Deps and defaultDeps.
//	Optional dependencies are dropped unless the DependencyChecker knows
//	them. A missing or unreadable manifest degrades to the plugin version
//	and the explicit dependencies.
//
// Inputs:
//
//	d - The descriptor.
//	defaultDeps - Dependencies every asset of this kind carries.
//
// Outputs:
//
//	Resolved - The resolution.
//	error - ErrMissingFile when d.File is empty.
func (r *Resolver) Process(d Descriptor, defaultDeps []string) (Resolved, error) {
	return r.process(d, defaultDeps, r.checker)
}

func (r *Resolver) process(d Descriptor, defaultDeps []string, check DependencyChecker) (Resolved, error) {
	l, err := r.locate(d)
	if err != nil {
		return Resolved{}, err
	}

	version := r.cfg.Version
	deps := union(d.Deps, defaultDeps)
	if l.hasManifest {
		if l.manifest.Version != "" {
			version = l.manifest.Version
		}
		deps = union(deps, l.manifest.Dependencies)
	}
	deps = r.dropOptional(deps, check)

	out := Resolved{
		URL:          r.Hooks.PathFilter.Apply(PathEvent{Descriptor: d, Mode: ModeURL, Path: l.pathFor(d, ModeURL)}).Path,
		Version:      r.Hooks.VersionFilter.Apply(VersionEvent{Descriptor: d, Version: version}).Version,
		Dependencies: r.Hooks.DependenciesFilter.Apply(DependenciesEvent{Descriptor: d, Dependencies: deps}).Dependencies,
		Minified:     l.minified,
	}
	if !d.External {
		out.Path = l.local
	}
	if out.Dependencies == nil {
		out.Dependencies = []string{}
	}
	return out, nil
}

func (l located) pathFor(d Descriptor, mode Mode) string {
	if d.External || mode == ModeLogical {
		return l.logical
	}
	if mode == ModeLocal {
		return l.local
	}
	return l.url
}

func (r *Resolver) locate(d Descriptor) (located, error) {
	if strings.TrimSpace(d.File) == "" {
		return located{}, ErrMissingFile
	}

	key := d.memoKey()
	r.mu.RLock()
	if r.memo != nil {
		if l, ok := r.memo[key]; ok {
			r.mu.RUnlock()
			return l, nil
		}
	}
	r.mu.RUnlock()

	l := r.locateUncached(d)

	r.mu.Lock()
	if r.memo != nil {
		r.memo[key] = l
	}
	r.mu.Unlock()
	return l, nil
}

func (r *Resolver) locateUncached(d Descriptor) located {
	name, ext := r.activeFile(d)
	logical := r.logicalPath(d, name, ext)

	if !r.cfg.DevMode && !d.External && !strings.HasSuffix(name, ".min") {
		minName := name + ".min"
		minLogical := r.logicalPath(d, minName, ext)
		if fileExists(r.localPath(minLogical)) {
			name, logical = minName, minLogical
		}
	}

	l := located{
		logical:  logical,
		local:    r.localPath(logical),
		url:      r.urlFor(logical),
		ext:      ext,
		minified: strings.HasSuffix(name, ".min"),
	}

	if !d.External {
		m, found, err := readManifest(strings.TrimSuffix(l.local, "."+ext))
		if err != nil {
			r.logger.Warn("asset manifest ignored",
				slog.String("asset", logical),
				slog.String("error", err.Error()),
			)
		}
		l.manifest, l.hasManifest = m, found
	}
	return l
}

// activeFile picks the file name and splits off its extension.
func (r *Resolver) activeFile(d Descriptor) (string, string) {
	base, ext := splitExt(d.File, d.Ext)

	switch {
	case r.cfg.DevMode && d.DevFile != "":
		return splitExt(d.DevFile, ext)
	case !r.cfg.DevMode && d.ProdFile != "":
		name, prodExt := splitExt(d.ProdFile, ext)
		if d.External || fileExists(r.localPath(r.logicalPath(d, name, prodExt))) {
			return name, prodExt
		}
	}
	return base, ext
}

func splitExt(file, ext string) (string, string) {
	if ext != "" {
		return strings.TrimSuffix(file, "."+ext), ext
	}
	if e := filepath.Ext(file); e != "" {
		return strings.TrimSuffix(file, e), strings.TrimPrefix(e, ".")
	}
	return file, ""
}

func pathPrefix(ext, sub string) string {
	prefix := ext
	switch ext {
	case "js":
		prefix = "scripts"
	case "css":
		prefix = "styles"
	}
	if sub != "" {
		prefix += "/" + sub
	}
	return prefix
}

func (r *Resolver) logicalPath(d Descriptor, name, ext string) string {
	pattern := d.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	p := strings.NewReplacer(
		"{path_prefix}", pathPrefix(ext, d.Path),
		"{file}", name,
		"{extension}", ext,
	).Replace(pattern)
	if !d.External {
		p = r.cfg.BuildDir + "/" + p
	}
	return normalizePath(p)
}

func (r *Resolver) localPath(logical string) string {
	return filepath.Join(r.cfg.RootDir, filepath.FromSlash(logical))
}

func (r *Resolver) urlFor(logical string) string {
	if hasScheme(logical) {
		return logical
	}
	return strings.TrimRight(r.cfg.BaseURL, "/") + "/" + strings.TrimLeft(logical, "/")
}

func (r *Resolver) dropOptional(deps []string, check DependencyChecker) []string {
	out := deps[:0:0]
	for _, dep := range deps {
		if contains(r.cfg.OptionalDeps, dep) && (check == nil || !check(dep)) {
			continue
		}
		out = append(out, dep)
	}
	return out
}

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

func hasScheme(p string) bool {
	return schemeRe.MatchString(p)
}

// normalizePath converts separators to "/", drops "./" segments and
// collapses repeated separators. A leading URL scheme is left intact.
func normalizePath(p string) string {
	scheme := schemeRe.FindString(p)
	rest := strings.ReplaceAll(p[len(scheme):], `\`, "/")

	for strings.Contains(rest, "//") {
		rest = strings.ReplaceAll(rest, "//", "/")
	}
	for strings.Contains(rest, "/./") {
		rest = strings.ReplaceAll(rest, "/./", "/")
	}
	for strings.HasPrefix(rest, "./") {
		rest = rest[2:]
	}
	return scheme + rest
}

func union(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, list := range lists {
		for _, item := range list {
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
