// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// normalize converts v to its canonical JSON form: float64 numbers, []any
// lists and map[string]any objects. Values stored in Memory are always
// normalized so equality survives a save/load cycle.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// clone deep-copies a normalized value so callers cannot mutate the
// document through a returned map or slice.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}

func equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// mergePreferCurrent merges legacy into current.
//
// Maps merge recursively, scalars already present in current win and lists
// are unioned with current order first. It reports whether current changed.
func mergePreferCurrent(current, legacy map[string]any) bool {
	changed := false
	for key, lv := range legacy {
		cv, exists := current[key]
		if !exists {
			current[key] = clone(lv)
			changed = true
			continue
		}
		switch c := cv.(type) {
		case map[string]any:
			if l, ok := lv.(map[string]any); ok && mergePreferCurrent(c, l) {
				changed = true
			}
		case []any:
			if l, ok := lv.([]any); ok {
				merged := unionList(c, l)
				if len(merged) != len(c) {
					current[key] = merged
					changed = true
				}
			}
		}
	}
	return changed
}

func unionList(current, extra []any) []any {
	out := clone(current).([]any)
	for _, v := range extra {
		if indexOf(out, v) < 0 {
			out = append(out, clone(v))
		}
	}
	return out
}

func indexOf(list []any, v any) int {
	for i, item := range list {
		if equal(item, v) {
			return i
		}
	}
	return -1
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		if t {
			return "1", true
		}
		return "", true
	default:
		return "", false
	}
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true, true
		case "", "0", "false", "no", "off":
			return false, true
		}
	}
	return false, false
}
