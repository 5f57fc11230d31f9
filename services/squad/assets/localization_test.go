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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestLocalization_AddUpdate(t *testing.T) {
	l := NewLocalization(nil)

	assert.True(t, l.Add("squadData", map[string]any{"a": 1, "nested": map[string]any{"x": 1}}))
	assert.True(t, l.Update("squadData", map[string]any{"b": 2, "nested": map[string]any{"y": 2}}))

	got, ok := l.Get("squadData")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "nested": map[string]any{"x": 1, "y": 2}}, got)

	assert.True(t, l.Add("squadData", map[string]any{"only": true}))
	got, _ = l.Get("squadData")
	assert.Equal(t, map[string]any{"only": true}, got, "Add replaces")

	assert.True(t, l.Update("fresh", map[string]any{"k": "v"}))
	assert.True(t, l.Has("fresh"))
}

func TestLocalization_RejectsInvalidNames(t *testing.T) {
	l := NewLocalization(nil)
	assert.False(t, l.Add("", nil))
	assert.False(t, l.Add("not-valid", nil))
	assert.False(t, l.Update("1bad", nil))
	assert.Empty(t, l.All())
}

func TestLocalization_RemoveClear(t *testing.T) {
	l := NewLocalization(nil)
	l.Add("a", nil)
	l.Add("b", nil)

	assert.True(t, l.Remove("a"))
	assert.False(t, l.Remove("a"))
	assert.Len(t, l.All(), 1)

	l.Clear()
	assert.Empty(t, l.All())
}

func TestLocalization_GetReturnsCopy(t *testing.T) {
	l := NewLocalization(nil)
	l.Add("a", map[string]any{"n": map[string]any{"x": 1}})

	got, _ := l.Get("a")
	got["n"].(map[string]any)["x"] = 99

	again, _ := l.Get("a")
	assert.Equal(t, 1, again["n"].(map[string]any)["x"])
}

func TestLocalization_FlushOnce(t *testing.T) {
	l := NewLocalization(nil)
	l.Add("squadFirst", map[string]any{"html": "<b>"})
	l.Add("squadSecond", map[string]any{"n": 2})

	var buf bytes.Buffer
	wrote, err := l.Flush(&buf)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t,
		"<script id=\"squadFirst-js-extra\">var squadFirst = {\"html\":\"\\u003cb\\u003e\"};</script>\n"+
			"<script id=\"squadSecond-js-extra\">var squadSecond = {\"n\":2};</script>\n",
		buf.String())
	assert.True(t, l.Flushed())

	buf.Reset()
	wrote, err = l.Flush(&buf)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Empty(t, buf.String())
}

func TestLocalization_FlushPrintsLaterEntries(t *testing.T) {
	l := NewLocalization(nil)
	l.Add("squadFirst", map[string]any{"n": 1})

	var buf bytes.Buffer
	_, err := l.Flush(&buf)
	require.NoError(t, err)

	l.Add("squadLate", map[string]any{"n": 2})
	buf.Reset()
	wrote, err := l.Flush(&buf)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "<script id=\"squadLate-js-extra\">var squadLate = {\"n\":2};</script>\n", buf.String())
}

func TestLocalization_FlushWriteError(t *testing.T) {
	l := NewLocalization(nil)
	l.Add("a", nil)
	_, err := l.Flush(failingWriter{})
	assert.Error(t, err)
}
