// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package reconcile holds the pieces shared by every resource lifecycle:
// the desired-state vocabulary, required-field validation, and the
// normalized result reported after a run.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/diff"
)

// State is the desired lifecycle state requested for a resource.
type State int

const (
	StatePresent State = iota
	StateAbsent
	StateEnabled
	StateDisabled
	StateLocked
	StateUnlocked
)

var stateNames = map[State]string{
	StatePresent:  "present",
	StateAbsent:   "absent",
	StateEnabled:  "enabled",
	StateDisabled: "disabled",
	StateLocked:   "locked",
	StateUnlocked: "unlocked",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState maps the textual desired state to its enum value. An empty
// string defaults to present.
func ParseState(s string) (State, error) {
	if s == "" {
		return StatePresent, nil
	}
	for state, name := range stateNames {
		if strings.EqualFold(s, name) {
			return state, nil
		}
	}
	return StatePresent, fmt.Errorf("unknown state %q", s)
}

// MissingFieldsError reports create-time validation failures with the full
// list of absent fields, so the caller can fix them all at once.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// ValidateRequired checks that every named field has a non-empty value in
// props. All missing fields are collected before failing.
func ValidateRequired(props map[string]any, fields ...string) error {
	var missing []string
	for _, f := range fields {
		v, ok := props[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingFieldsError{Fields: missing}
}

// Result is the normalized outcome of one reconciliation run: whether
// anything changed, the field-level before/after diff, and the resource's
// reported attributes.
type Result struct {
	Changed  bool           `json:"changed"`
	Diff     diff.Diff      `json:"diff"`
	Resource map[string]any `json:"resource,omitempty"`
}

// NewResult builds an unchanged Result with empty diff maps.
func NewResult() *Result {
	return &Result{Diff: diff.Diff{Before: map[string]any{}, After: map[string]any{}}}
}

// MergeDiff folds another diff into the result and flags the run changed
// when the merged diff is non-empty.
func (r *Result) MergeDiff(d diff.Diff) {
	for k, v := range d.Before {
		r.Diff.Before[k] = v
	}
	for k, v := range d.After {
		r.Diff.After[k] = v
	}
	if !d.Empty() {
		r.Changed = true
	}
}

// RecordTransition notes a sub-state transition (e.g. enabled to locked) in
// the diff and flags the run changed.
func (r *Result) RecordTransition(field string, before, after any) {
	r.Diff.Before[field] = before
	r.Diff.After[field] = after
	r.Changed = true
}
