// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package diff compares a wanted attribute set against the attributes of a
// live resource and reports what would have to change.
package diff

import (
	"reflect"
	"strconv"
	"strings"
)

// Diff holds the differing fields only: Before carries the live values (nil
// for fields the resource does not have), After the wanted ones. An empty
// Diff means no mutation is needed.
type Diff struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// Empty reports whether no field differs.
func (d Diff) Empty() bool {
	return len(d.After) == 0
}

// DefaultCaseSensitiveKeys lists the field names compared with exact case:
// opaque identifiers and free-form display strings. Every other string field
// compares case-insensitively, matching how the platform treats names.
var DefaultCaseSensitiveKeys = []string{"id", "displaytext", "displayname", "description"}

// Differ compares attribute maps. The zero value is not usable; construct
// with New.
type Differ struct {
	caseSensitive map[string]bool
}

// New builds a Differ. With no arguments the default case-sensitive key set
// applies.
func New(caseSensitiveKeys ...string) *Differ {
	if len(caseSensitiveKeys) == 0 {
		caseSensitiveKeys = DefaultCaseSensitiveKeys
	}
	cs := make(map[string]bool, len(caseSensitiveKeys))
	for _, k := range caseSensitiveKeys {
		cs[strings.ToLower(k)] = true
	}
	return &Differ{caseSensitive: cs}
}

// Compare reports the fields of wanted that differ from current. Fields with
// a nil wanted value are skipped: nil means no opinion, never a requested
// clear. onlyKeys, when non-empty, restricts comparison to those fields;
// resources with partially updatable attributes use it to ignore the rest.
func (d *Differ) Compare(wanted, current map[string]any, onlyKeys ...string) (Diff, bool) {
	only := make(map[string]bool, len(onlyKeys))
	for _, k := range onlyKeys {
		only[k] = true
	}

	out := Diff{Before: map[string]any{}, After: map[string]any{}}
	for key, want := range wanted {
		if want == nil {
			continue
		}
		if len(only) > 0 && !only[key] {
			continue
		}
		have, ok := current[key]
		if !ok {
			out.Before[key] = nil
			out.After[key] = want
			continue
		}
		before, equal := d.compareValue(key, want, have)
		if !equal {
			out.Before[key] = before
			out.After[key] = want
		}
	}
	return out, !out.Empty()
}

// compareValue returns the current value as recorded in the diff (coerced
// for numeric comparisons) and whether it equals the wanted value.
func (d *Differ) compareValue(key string, want, have any) (any, bool) {
	switch w := want.(type) {
	case int:
		h, ok := toInt64(have)
		return h, ok && int64(w) == h
	case int64:
		h, ok := toInt64(have)
		return h, ok && w == h
	case float64:
		h, ok := toFloat64(have)
		return h, ok && w == h
	case string:
		h, ok := have.(string)
		if !ok {
			return have, false
		}
		if d.caseSensitive[strings.ToLower(key)] {
			return h, w == h
		}
		return h, strings.EqualFold(w, h)
	default:
		return have, reflect.DeepEqual(want, have)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
