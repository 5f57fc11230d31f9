// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SquadModules/services/squad/options"
)

func TestOptionLayouts(t *testing.T) {
	ctx := context.Background()
	store := options.NewMemoryStore()
	layouts := NewOptionLayouts(store, "divi-squad")

	_, found, err := layouts.Layout(ctx, "12")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, layouts.Save(ctx, "12", "<section>hero</section>"))
	content, found, err := layouts.Layout(ctx, "12")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "<section>hero</section>", content)

	raw, found, err := store.Get(ctx, "divi-squad-layout-12")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "<section>hero</section>", string(raw))

	require.NoError(t, layouts.Delete(ctx, "12"))
	_, found, err = layouts.Layout(ctx, "12")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOptionLayouts_InvalidID(t *testing.T) {
	layouts := NewOptionLayouts(options.NewMemoryStore(), "divi-squad")
	for _, id := range []string{"", "../settings", "a b", "x:y"} {
		_, _, err := layouts.Layout(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidLayoutID, id)
		assert.ErrorIs(t, layouts.Save(context.Background(), id, "c"), ErrInvalidLayoutID, id)
	}
}
