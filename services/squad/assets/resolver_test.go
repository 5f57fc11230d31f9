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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBaseURL = "https://example.test/wp-content/plugins/squad-modules-for-divi"
	testVersion = "3.2.0"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newTestResolver(t *testing.T, dev bool, opts ...ResolverOption) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	return NewResolver(ResolverConfig{
		RootDir: root,
		BaseURL: testBaseURL,
		Version: testVersion,
		DevMode: dev,
	}, opts...), root
}

// =============================================================================
// Resolution
// =============================================================================

func TestResolver_DividerProductionScenario(t *testing.T) {
	r, root := newTestResolver(t, false)
	d := Descriptor{File: "divider.js", ProdFile: "divider.min.js"}

	res, err := r.Process(d, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.URL, "/divider.js"), res.URL)
	assert.Equal(t, testVersion, res.Version)
	assert.False(t, res.Minified)

	writeFile(t, root, "build/scripts/divider.min.js", "min")
	res, err = r.Process(d, nil)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/build/scripts/divider.min.js", res.URL)
	assert.Equal(t, testVersion, res.Version)
	assert.True(t, res.Minified)
}

func TestResolver_MinifiedSiblingWithoutProdFile(t *testing.T) {
	r, root := newTestResolver(t, false)
	writeFile(t, root, "build/scripts/divider.js", "src")
	writeFile(t, root, "build/scripts/divider.min.js", "min")

	url, err := r.ResolvePath(Descriptor{File: "divider", Ext: "js"}, ModeURL)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/build/scripts/divider.min.js", url)
}

func TestResolver_DevModeUsesDevFileAndSkipsMinified(t *testing.T) {
	r, root := newTestResolver(t, true)
	writeFile(t, root, "build/scripts/divider.min.js", "min")

	res, err := r.Process(Descriptor{File: "divider.js", DevFile: "divider.dev.js", ProdFile: "divider.min.js"}, nil)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/build/scripts/divider.dev.js", res.URL)
	assert.False(t, res.Minified)
}

func TestResolver_Modes(t *testing.T) {
	r, root := newTestResolver(t, false)
	d := Descriptor{File: "divider.css", Path: "modules"}

	logical, err := r.ResolvePath(d, ModeLogical)
	require.NoError(t, err)
	assert.Equal(t, "build/styles/modules/divider.css", logical)

	local, err := r.ResolvePath(d, ModeLocal)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "build", "styles", "modules", "divider.css"), local)

	url, err := r.ResolvePath(d, ModeURL)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/build/styles/modules/divider.css", url)

	assert.False(t, r.Exists(d))
	writeFile(t, root, "build/styles/modules/divider.css", "css")
	assert.True(t, r.Exists(d))
}

func TestResolver_External(t *testing.T) {
	r, _ := newTestResolver(t, false)

	url, err := r.ResolvePath(Descriptor{
		File:     "lib.js",
		Pattern:  "https://cdn.example.test//libs/./{file}.{extension}",
		External: true,
	}, ModeLocal)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/libs/lib.js", url)

	res, err := r.Process(Descriptor{File: "vendor/lib.js", External: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "scripts/vendor/lib.js", res.URL)
	assert.Empty(t, res.Path)
}

func TestResolver_MissingFile(t *testing.T) {
	r, _ := newTestResolver(t, false)

	_, err := r.Process(Descriptor{ProdFile: "x.min.js"}, nil)
	assert.ErrorIs(t, err, ErrMissingFile)
	_, err = r.ResolvePath(Descriptor{}, ModeURL)
	assert.ErrorIs(t, err, ErrMissingFile)
	assert.False(t, r.Exists(Descriptor{}))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`build\scripts\a.js`, "build/scripts/a.js"},
		{"./build//scripts/./a.js", "build/scripts/a.js"},
		{"https://cdn.test//x/./y.js", "https://cdn.test/x/y.js"},
		{"build/scripts/a.js", "build/scripts/a.js"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.in))
		})
	}
}

// =============================================================================
// Manifest, version and dependencies
// =============================================================================

func TestResolver_PHPManifest(t *testing.T) {
	r, root := newTestResolver(t, false)
	writeFile(t, root, "build/scripts/divider.asset.php",
		"<?php return array('dependencies' => array('react', 'wp-polyfill', 'wp-element'), 'version' => 'a1b2c3');")

	res, err := r.Process(Descriptor{File: "divider.js", Deps: []string{"jquery", "react"}}, []string{"lodash"})
	require.NoError(t, err)

	want := Resolved{
		URL:          testBaseURL + "/build/scripts/divider.js",
		Path:         filepath.Join(root, "build", "scripts", "divider.js"),
		Version:      "a1b2c3",
		Dependencies: []string{"jquery", "react", "lodash", "wp-element"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_MinifiedManifestShortSyntax(t *testing.T) {
	r, root := newTestResolver(t, false)
	writeFile(t, root, "build/scripts/divider.min.js", "min")
	writeFile(t, root, "build/scripts/divider.asset.php", "<?php return array('version' => 'full');")
	writeFile(t, root, "build/scripts/divider.min.asset.php",
		`<?php return ['dependencies' => ["wp-i18n"], 'version' => 'min123'];`)

	res, err := r.Process(Descriptor{File: "divider.js"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "min123", res.Version)
	assert.Equal(t, []string{"wp-i18n"}, res.Dependencies)
}

func TestResolver_JSONManifest(t *testing.T) {
	r, root := newTestResolver(t, false)
	writeFile(t, root, "build/styles/divider.asset.json", `{"dependencies":["wp-components"],"version":"j1"}`)

	res, err := r.Process(Descriptor{File: "divider.css"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "j1", res.Version)
	assert.Equal(t, []string{"wp-components"}, res.Dependencies)
}

func TestResolver_MalformedManifestDegrades(t *testing.T) {
	r, root := newTestResolver(t, false)
	writeFile(t, root, "build/scripts/divider.asset.php", "<?php return null;")

	res, err := r.Process(Descriptor{File: "divider.js", Deps: []string{"jquery"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, testVersion, res.Version)
	assert.Equal(t, []string{"jquery"}, res.Dependencies)
}

func TestResolver_OptionalDependencyKeptWhenRegistered(t *testing.T) {
	r, _ := newTestResolver(t, false, WithDependencyChecker(func(h string) bool { return h == "wp-polyfill" }))

	res, err := r.Process(Descriptor{File: "divider.js", Deps: []string{"wp-polyfill"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"wp-polyfill"}, res.Dependencies)
}

func TestResolver_Idempotent(t *testing.T) {
	for _, memo := range []bool{false, true} {
		var opts []ResolverOption
		if memo {
			opts = append(opts, WithMemo())
		}
		r, root := newTestResolver(t, false, opts...)
		writeFile(t, root, "build/scripts/divider.min.js", "min")
		writeFile(t, root, "build/scripts/divider.min.asset.php",
			"<?php return array('dependencies' => array('react'), 'version' => 'v9');")
		d := Descriptor{File: "divider.js", ProdFile: "divider.min.js", Deps: []string{"jquery"}}

		first, err := r.Process(d, []string{"wp-element"})
		require.NoError(t, err)
		second, err := r.Process(d, []string{"wp-element"})
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("memo=%t: second resolution differs (-first +second):\n%s", memo, diff)
		}
	}
}

func TestResolver_MemoInvalidate(t *testing.T) {
	r, root := newTestResolver(t, false, WithMemo())
	d := Descriptor{File: "divider.js"}

	res, err := r.Process(d, nil)
	require.NoError(t, err)
	assert.False(t, res.Minified)

	writeFile(t, root, "build/scripts/divider.min.js", "min")
	res, _ = r.Process(d, nil)
	assert.False(t, res.Minified, "memoized until invalidated")

	r.Invalidate()
	res, _ = r.Process(d, nil)
	assert.True(t, res.Minified)
}

func TestResolver_Hooks(t *testing.T) {
	r, _ := newTestResolver(t, false)
	r.Hooks.PathFilter.Add(func(e PathEvent) PathEvent {
		if e.Mode == ModeURL {
			e.Path = strings.Replace(e.Path, "https://example.test", "https://cdn.test", 1)
		}
		return e
	})
	r.Hooks.VersionFilter.Add(func(e VersionEvent) VersionEvent {
		e.Version += "-beta"
		return e
	})
	r.Hooks.DependenciesFilter.Add(func(e DependenciesEvent) DependenciesEvent {
		e.Dependencies = append(e.Dependencies, "extra")
		return e
	})

	res, err := r.Process(Descriptor{File: "divider.js"}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, "https://cdn.test/"))
	assert.Equal(t, testVersion+"-beta", res.Version)
	assert.Equal(t, []string{"extra"}, res.Dependencies)
}

func TestParsePHPManifest(t *testing.T) {
	m, err := parsePHPManifest([]byte(`<?php return array( "dependencies" => array( "a", 'b' ), "version" => "1.0" );`))
	require.NoError(t, err)
	assert.Equal(t, Manifest{Dependencies: []string{"a", "b"}, Version: "1.0"}, m)

	m, err = parsePHPManifest([]byte(`<?php return array('dependencies' => array(), 'version' => 'x');`))
	require.NoError(t, err)
	assert.Empty(t, m.Dependencies)

	_, err = parsePHPManifest([]byte(`<?php echo 1;`))
	assert.Error(t, err)
}

func TestMode_RoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeURL, ModeLocal, ModeLogical} {
		assert.Equal(t, m, ParseMode(m.String()))
	}
	assert.Equal(t, "unknown", Mode(9).String())
}
