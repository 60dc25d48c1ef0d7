// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package reconcile

import (
	"testing"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{"", StatePresent, false},
		{"present", StatePresent, false},
		{"absent", StateAbsent, false},
		{"Enabled", StateEnabled, false},
		{"DISABLED", StateDisabled, false},
		{"locked", StateLocked, false},
		{"unlocked", StateUnlocked, false},
		{"suspended", StatePresent, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseState(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateRequired(t *testing.T) {
	props := map[string]any{
		"name":     "acme",
		"email":    "",
		"password": nil,
	}

	err := ValidateRequired(props, "name", "email", "password", "username")

	missing, ok := err.(*MissingFieldsError)
	if !ok {
		t.Fatalf("expected *MissingFieldsError, got %T", err)
	}
	want := []string{"email", "password", "username"}
	if len(missing.Fields) != len(want) {
		t.Fatalf("missing fields = %v, want %v", missing.Fields, want)
	}
	for i, f := range want {
		if missing.Fields[i] != f {
			t.Errorf("missing fields = %v, want %v", missing.Fields, want)
			break
		}
	}
}

func TestValidateRequiredAllPresent(t *testing.T) {
	props := map[string]any{"name": "acme", "size": 3}
	if err := ValidateRequired(props, "name", "size"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResultRecordTransition(t *testing.T) {
	r := NewResult()
	if r.Changed {
		t.Fatal("fresh result must be unchanged")
	}

	r.RecordTransition("state", "disabled", "enabled")

	if !r.Changed {
		t.Error("transition must flag the run changed")
	}
	if r.Diff.Before["state"] != "disabled" || r.Diff.After["state"] != "enabled" {
		t.Errorf("diff = %+v", r.Diff)
	}
}
