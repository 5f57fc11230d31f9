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
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPage(t *testing.T) *Page {
	t.Helper()
	reg, loc, _ := newTestRegistry(t)
	return NewPage("divi-squad", reg, loc, NewBodyClasses("divi-squad"), GlobalObject{
		Version:   testVersion,
		AssetsURL: testBaseURL + "/build",
		RESTURL:   "https://example.test/wp-json/divi-squad/v1",
		Extra:     map[string]any{"locale": "en_US"},
	})
}

func TestPage_HeadAndFooter(t *testing.T) {
	p := newTestPage(t)
	reg := p.Registry

	require.True(t, reg.RegisterStyle("divider", Descriptor{File: "divider.css"}, "screen"))
	require.True(t, reg.RegisterScript("head", Descriptor{File: "head.js"}, ScriptArgs{Strategy: "defer"}))
	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider.js"}, ScriptArgs{InFooter: true}))
	require.True(t, reg.EnqueueStyle("divider"))
	require.True(t, reg.EnqueueScript("head", &Localize{Data: map[string]any{"k": "v"}}))
	require.True(t, reg.EnqueueScript("divider", nil))

	var head bytes.Buffer
	require.NoError(t, p.WriteHead(&head))
	out := head.String()
	assert.Contains(t, out, `<link rel="stylesheet" id="divi-squad-divider-css" href="`+testBaseURL+`/build/styles/divider.css?ver=3.2.0" media="screen" />`)
	assert.Contains(t, out, `<script id="diviSquadHead-js-extra">var diviSquadHead = {"k":"v"};</script>`)
	assert.Contains(t, out, `id="divi-squad-head-js" defer></script>`)
	assert.NotContains(t, out, "divi-squad-divider-js")
	assert.Less(t, strings.Index(out, "js-extra"), strings.Index(out, "divi-squad-head-js"),
		"localization precedes the first header script")

	var footer bytes.Buffer
	require.NoError(t, p.WriteFooter(&footer))
	out = footer.String()
	assert.Contains(t, out, `<script id="divi-squad-extra-js">var DiviSquadExtra = `)
	assert.NotContains(t, out, "diviSquadHead", "localization printed once")
	assert.Contains(t, out, `id="divi-squad-divider-js"></script>`)
}

func TestPage_GlobalObject(t *testing.T) {
	p := newTestPage(t)

	var footer bytes.Buffer
	require.NoError(t, p.WriteFooter(&footer))

	m := regexp.MustCompile(`var DiviSquadExtra = (\{.*?\});`).FindStringSubmatch(footer.String())
	require.Len(t, m, 2)
	var global map[string]any
	require.NoError(t, json.Unmarshal([]byte(m[1]), &global))

	assert.Equal(t, p.Nonce(), global["nonce"])
	assert.Equal(t, testVersion, global["version"])
	assert.Equal(t, false, global["dev_mode"])
	assert.Equal(t, "en_US", global["locale"])
	assert.NotEmpty(t, p.ID())
	assert.NotEqual(t, p.ID(), p.Nonce())
}

func TestPage_FooterFlushesLocalizationWithoutHeadScripts(t *testing.T) {
	p := newTestPage(t)
	p.Localization.Add("squadLate", map[string]any{"n": 1})

	var head, footer bytes.Buffer
	require.NoError(t, p.WriteHead(&head))
	require.NoError(t, p.WriteFooter(&footer))
	assert.NotContains(t, head.String(), "squadLate")
	assert.Contains(t, footer.String(), "var squadLate = ")
}

func TestPage_LocalizationEnqueuedAfterHeadReachesFooter(t *testing.T) {
	p := newTestPage(t)
	reg := p.Registry

	require.True(t, reg.RegisterScript("head", Descriptor{File: "head.js"}, ScriptArgs{}))
	require.True(t, reg.RegisterScript("divider", Descriptor{File: "divider.js"}, ScriptArgs{InFooter: true}))
	require.True(t, reg.EnqueueScript("head", &Localize{Data: map[string]any{"k": "v"}}))

	var head bytes.Buffer
	require.NoError(t, p.WriteHead(&head))
	assert.Contains(t, head.String(), "var diviSquadHead = ")

	require.True(t, reg.EnqueueScript("divider", &Localize{ObjectName: "diviSquadDivider", Data: map[string]any{"style": "wave"}}))

	var footer bytes.Buffer
	require.NoError(t, p.WriteFooter(&footer))
	out := footer.String()
	assert.Contains(t, out, `var diviSquadDivider = {"style":"wave"};`)
	assert.NotContains(t, out, "diviSquadHead")
	assert.Less(t, strings.Index(out, "diviSquadDivider"), strings.Index(out, "divi-squad-divider-js"))
}

func TestPage_BodyClass(t *testing.T) {
	p := newTestPage(t)
	p.BodyClasses.Add("has-forms")
	assert.Equal(t, "home divi-squad-has-forms", p.BodyClass("home"))
}

func TestVersioned(t *testing.T) {
	assert.Equal(t, "https://x.test/a.js?ver=1.0", versioned(Resolved{URL: "https://x.test/a.js", Version: "1.0"}))
	assert.Equal(t, "https://x.test/a.js?v=2&ver=1+0", versioned(Resolved{URL: "https://x.test/a.js?v=2", Version: "1 0"}))
	assert.Equal(t, "https://x.test/a.js", versioned(Resolved{URL: "https://x.test/a.js"}))
}
