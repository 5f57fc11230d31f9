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
	"errors"
	"fmt"
	"regexp"

	"github.com/AleutianAI/SquadModules/services/squad/options"
)

// ErrInvalidLayoutID is returned for layout IDs outside [A-Za-z0-9_-]{1,64}.
var ErrInvalidLayoutID = errors.New("invalid layout id")

var layoutIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// OptionLayouts is a LayoutSource over the option store. Each layout is
// saved verbatim under the option "{prefix}-layout-{id}".
type OptionLayouts struct {
	store  options.Store
	prefix string
}

// NewOptionLayouts creates a layout source sharing the settings store.
func NewOptionLayouts(store options.Store, prefix string) *OptionLayouts {
	return &OptionLayouts{store: store, prefix: prefix}
}

func (o *OptionLayouts) optionName(id string) (string, error) {
	if !layoutIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLayoutID, id)
	}
	return o.prefix + "-layout-" + id, nil
}

// Layout implements LayoutSource.
func (o *OptionLayouts) Layout(ctx context.Context, id string) (string, bool, error) {
	name, err := o.optionName(id)
	if err != nil {
		return "", false, err
	}
	raw, found, err := o.store.Get(ctx, name)
	if err != nil || !found {
		return "", false, err
	}
	return string(raw), true, nil
}

// Save stores content as layout id, replacing any previous version.
func (o *OptionLayouts) Save(ctx context.Context, id, content string) error {
	name, err := o.optionName(id)
	if err != nil {
		return err
	}
	if err := o.store.Set(ctx, name, []byte(content)); err != nil {
		return fmt.Errorf("save layout %s: %w", id, err)
	}
	return nil
}

// Delete removes layout id.
func (o *OptionLayouts) Delete(ctx context.Context, id string) error {
	name, err := o.optionName(id)
	if err != nil {
		return err
	}
	return o.store.Delete(ctx, name)
}
