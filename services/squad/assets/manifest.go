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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Manifest is the build tool's per-entry output.
type Manifest struct {
	Dependencies []string `json:"dependencies"`
	Version      string   `json:"version"`
}

var (
	phpVersionRe = regexp.MustCompile(`['"]version['"]\s*=>\s*['"]([^'"]*)['"]`)
	phpDepsRe    = regexp.MustCompile(`['"]dependencies['"]\s*=>\s*(?:array\s*\(|\[)([^\])]*)[\])]`)
	phpStringRe  = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
)

// manifestPaths returns the candidate manifest files for an asset path
// without its extension: "<base>.asset.php" then "<base>.asset.json".
func manifestPaths(base string) []string {
	return []string{base + ".asset.php", base + ".asset.json"}
}

// readManifest loads the first manifest that exists.
//
// Outputs:
//
//	Manifest - The parsed manifest.
//	bool - False when no manifest exists.
//	error - Parse or read failure of an existing manifest.
func readManifest(base string) (Manifest, bool, error) {
	for _, p := range manifestPaths(base) {
		raw, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Manifest{}, false, fmt.Errorf("read manifest %s: %w", p, err)
		}
		var m Manifest
		if strings.HasSuffix(p, ".json") {
			err = json.Unmarshal(raw, &m)
		} else {
			m, err = parsePHPManifest(raw)
		}
		if err != nil {
			return Manifest{}, false, fmt.Errorf("parse manifest %s: %w", p, err)
		}
		return m, true, nil
	}
	return Manifest{}, false, nil
}

// parsePHPManifest reads the array literal written by wp-scripts, in long
// (array(...)) or short ([...]) syntax.
func parsePHPManifest(raw []byte) (Manifest, error) {
	var m Manifest
	found := false
	if match := phpVersionRe.FindSubmatch(raw); match != nil {
		m.Version = string(match[1])
		found = true
	}
	if match := phpDepsRe.FindSubmatch(raw); match != nil {
		found = true
		for _, s := range phpStringRe.FindAllSubmatch(match[1], -1) {
			dep := string(s[1])
			if dep == "" {
				dep = string(s[2])
			}
			if dep != "" {
				m.Dependencies = append(m.Dependencies, dep)
			}
		}
	}
	if !found {
		return Manifest{}, errors.New("no version or dependencies entry")
	}
	return m, nil
}
