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
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *Localization, string) {
	t.Helper()
	r, root := newTestResolver(t, false)
	loc := NewLocalization(slog.Default())
	return NewRegistry("divi-squad", r, loc, slog.Default()), loc, root
}

func TestRegistry_RegisterAndEnqueue(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	assert.False(t, reg.EnqueueScript("divider", nil), "enqueue requires registration")

	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider.js", Deps: []string{"jquery"}}, ScriptArgs{InFooter: true}))
	assert.True(t, reg.IsScriptRegistered("divider"))
	assert.False(t, reg.IsScriptEnqueued("divider"))
	assert.False(t, reg.IsStyleRegistered("divider"))

	assert.True(t, reg.EnqueueScript("divider", nil))
	assert.True(t, reg.EnqueueScript("divider", nil))
	assert.True(t, reg.IsScriptEnqueued("divider"))
	assert.Len(t, reg.Scripts(), 1)

	a, ok := reg.Asset(KindScript, "divider")
	require.True(t, ok)
	assert.Equal(t, "divi-squad-divider", a.FullHandle)
	assert.Equal(t, testVersion, reg.AssetVersion(KindScript, "divider"))
	assert.Equal(t, []string{"jquery"}, reg.AssetDependencies(KindScript, "divider"))
	assert.Equal(t, testBaseURL+"/build/scripts/divider.js", reg.AssetURL(KindScript, "divider"))

	assert.Empty(t, reg.AssetVersion(KindStyle, "divider"))
	assert.Nil(t, reg.AssetDependencies(KindScript, "missing"))
}

func TestRegistry_Styles(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	require.True(t, reg.RegisterStyle("divider", Descriptor{File: "divider.css"}, ""))
	assert.False(t, reg.EnqueueStyle("other"))
	assert.True(t, reg.EnqueueStyle("divider"))
	assert.True(t, reg.IsStyleEnqueued("divider"))

	styles := reg.Styles()
	require.Len(t, styles, 1)
	assert.Equal(t, "all", styles[0].Media)

	assert.True(t, reg.DeregisterStyle("divider"))
	assert.False(t, reg.DeregisterStyle("divider"))
	assert.Empty(t, reg.Styles())
}

func TestRegistry_NoPrefix(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.RegisterScript("vendor-lib", Descriptor{File: "lib.js", NoPrefix: true}, ScriptArgs{}))

	a, _ := reg.Asset(KindScript, "vendor-lib")
	assert.Equal(t, "vendor-lib", a.FullHandle)
}

func TestRegistry_ResolutionFailureIsFalse(t *testing.T) {
	var logs bytes.Buffer
	r, _ := newTestResolver(t, false)
	reg := NewRegistry("divi-squad", r, nil, slog.New(slog.NewTextHandler(&logs, nil)))

	assert.False(t, reg.RegisterScript("broken", Descriptor{}, ScriptArgs{}))
	assert.False(t, reg.RegisterScript("", Descriptor{File: "a.js"}, ScriptArgs{}))
	assert.False(t, reg.IsScriptRegistered("broken"))
	assert.Contains(t, logs.String(), "asset registration failed")
}

func TestRegistry_ReregistrationOverwritesKeepsEnqueue(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider.js"}, ScriptArgs{}))
	require.True(t, reg.EnqueueScript("divider", nil))

	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider-v2.js"}, ScriptArgs{}))
	assert.True(t, reg.IsScriptEnqueued("divider"))
	assert.True(t, strings.HasSuffix(reg.AssetURL(KindScript, "divider"), "divider-v2.js"))
}

func TestRegistry_DeregisterScript(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider.js"}, ScriptArgs{}))
	require.True(t, reg.EnqueueScript("divider", nil))

	assert.True(t, reg.DeregisterScript("divider"))
	assert.False(t, reg.DeregisterScript("divider"))
	assert.False(t, reg.IsScriptEnqueued("divider"))
	assert.Empty(t, reg.Scripts())
}

func TestRegistry_Localize(t *testing.T) {
	reg, loc, _ := newTestRegistry(t)
	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider.js"}, ScriptArgs{}))
	require.True(t, reg.RegisterScript("forms", Descriptor{File: "forms.js"}, ScriptArgs{}))

	require.True(t, reg.EnqueueScript("divider", &Localize{Data: map[string]any{"a": 1}}))
	require.True(t, reg.EnqueueScript("forms", &Localize{ObjectName: "SquadForms", Data: map[string]any{"b": 2}}))

	data, ok := loc.Get("diviSquadDivider")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1}, data)
	assert.True(t, loc.Has("SquadForms"))
}

func TestRegistry_ScriptsOrderDependenciesFirst(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.RegisterScript("app", Descriptor{File: "app.js", Deps: []string{"divi-squad-vendor"}}, ScriptArgs{}))
	require.True(t, reg.RegisterScript("vendor", Descriptor{File: "vendor.js"}, ScriptArgs{}))
	require.True(t, reg.EnqueueScript("app", nil))
	require.True(t, reg.EnqueueScript("vendor", nil))

	var handles []string
	for _, a := range reg.Scripts() {
		handles = append(handles, a.Handle)
	}
	assert.Equal(t, []string{"vendor", "app"}, handles)
}

func TestRegistry_OptionalDependencyFollowsHostHandles(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	d := Descriptor{File: "divider.js", Deps: []string{"wp-polyfill"}}

	require.True(t, reg.RegisterScript("divider", d, ScriptArgs{}))
	assert.Empty(t, reg.AssetDependencies(KindScript, "divider"))

	reg.AddHostHandles("wp-polyfill")
	require.True(t, reg.RegisterScript("divider", d, ScriptArgs{}))
	assert.Equal(t, []string{"wp-polyfill"}, reg.AssetDependencies(KindScript, "divider"))
}

func TestDefaultObjectName(t *testing.T) {
	tests := map[string]string{
		"divi-squad-divider":   "diviSquadDivider",
		"divi_squad-post-grid": "diviSquadPostGrid",
		"vendor":               "vendor",
		"3d-flip":              "_3dFlip",
		"":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultObjectName(in), in)
	}
}
