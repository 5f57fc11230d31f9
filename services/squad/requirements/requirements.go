// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package requirements checks the host environment before the plugin
// boots.
package requirements

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Host describes the environment the plugin runs in.
type Host struct {
	// BuilderVersion is the installed Divi version, e.g. "4.27.4".
	BuilderVersion string

	// MinBuilderVersion is the oldest supported Divi version.
	MinBuilderVersion string

	// ActivePlugins are the active host plugin slugs.
	ActivePlugins []string

	// RequiredPlugins must all be active. Each entry may list "|"
	// alternatives.
	RequiredPlugins []string
}

// Result is the outcome of Check.
type Result struct {
	Met            bool     `json:"met"`
	BuilderVersion string   `json:"builder_version"`
	MinVersion     string   `json:"min_version"`
	MissingPlugins []string `json:"missing_plugins,omitempty"`
	Problems       []string `json:"problems,omitempty"`
}

// Notice is the one-line summary logged when requirements are unmet.
func (r Result) Notice() string {
	if r.Met {
		return ""
	}
	return "Squad Modules is running in limited mode: " + strings.Join(r.Problems, "; ")
}

// Check validates the builder version and required plugins.
//
// Description:
//
//	Versions are compared as semantic versions; a missing "v" prefix and
//	missing minor or patch components are tolerated ("4.27" == "v4.27.0").
//	An empty MinBuilderVersion disables the version check. An empty or
//	unparsable BuilderVersion fails it.
func Check(h Host) Result {
	res := Result{Met: true, BuilderVersion: h.BuilderVersion, MinVersion: h.MinBuilderVersion}

	if h.MinBuilderVersion != "" {
		have, min := Canonical(h.BuilderVersion), Canonical(h.MinBuilderVersion)
		switch {
		case min == "":
			res.Problems = append(res.Problems, fmt.Sprintf("invalid minimum builder version %q", h.MinBuilderVersion))
		case have == "":
			res.Problems = append(res.Problems, "builder not detected")
		case semver.Compare(have, min) < 0:
			res.Problems = append(res.Problems, fmt.Sprintf("builder %s is older than required %s", h.BuilderVersion, h.MinBuilderVersion))
		}
	}

	active := make(map[string]bool, len(h.ActivePlugins))
	for _, p := range h.ActivePlugins {
		active[p] = true
	}
	for _, req := range h.RequiredPlugins {
		if !anyActive(req, active) {
			res.MissingPlugins = append(res.MissingPlugins, req)
		}
	}
	if len(res.MissingPlugins) > 0 {
		res.Problems = append(res.Problems, "missing required plugins: "+strings.Join(res.MissingPlugins, ", "))
	}

	res.Met = len(res.Problems) == 0
	return res
}

// Canonical converts a loose version string to semver canonical form, or
// "" when it cannot be parsed.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

func anyActive(req string, active map[string]bool) bool {
	for _, alt := range strings.Split(req, "|") {
		if active[strings.TrimSpace(alt)] {
			return true
		}
	}
	return false
}
