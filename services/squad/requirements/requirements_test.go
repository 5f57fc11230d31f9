// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package requirements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		host     Host
		met      bool
		problems int
	}{
		{"newer", Host{BuilderVersion: "4.27.4", MinBuilderVersion: "4.14.0"}, true, 0},
		{"equal short form", Host{BuilderVersion: "4.14", MinBuilderVersion: "v4.14.0"}, true, 0},
		{"older", Host{BuilderVersion: "4.9.10", MinBuilderVersion: "4.14.0"}, false, 1},
		{"not detected", Host{MinBuilderVersion: "4.14.0"}, false, 1},
		{"no minimum", Host{}, true, 0},
		{"bad minimum", Host{BuilderVersion: "4.0.0", MinBuilderVersion: "latest"}, false, 1},
		{"plugin alternative", Host{ActivePlugins: []string{"b"}, RequiredPlugins: []string{"a|b"}}, true, 0},
		{"plugin missing", Host{ActivePlugins: []string{"b"}, RequiredPlugins: []string{"a", "b"}}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(tt.host)
			assert.Equal(t, tt.met, res.Met)
			assert.Len(t, res.Problems, tt.problems)
			if tt.met {
				assert.Empty(t, res.Notice())
			} else {
				assert.Contains(t, res.Notice(), "limited mode")
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "v4.27.0", Canonical("4.27"))
	assert.Equal(t, "v4.27.4", Canonical(" v4.27.4 "))
	assert.Equal(t, "", Canonical("four"))
	assert.Equal(t, "", Canonical(""))
}
