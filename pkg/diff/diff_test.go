// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package diff

import (
	"reflect"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name        string
		wanted      map[string]any
		current     map[string]any
		onlyKeys    []string
		wantChanged bool
		wantBefore  map[string]any
		wantAfter   map[string]any
	}{
		{
			name:        "identical maps",
			wanted:      map[string]any{"name": "acme", "state": "enabled"},
			current:     map[string]any{"name": "acme", "state": "enabled"},
			wantChanged: false,
		},
		{
			name:        "nil wanted value means no opinion",
			wanted:      map[string]any{"name": "acme", "networkdomain": nil},
			current:     map[string]any{"name": "acme"},
			wantChanged: false,
		},
		{
			name:        "names compare case-insensitively",
			wanted:      map[string]any{"name": "ACME"},
			current:     map[string]any{"name": "acme"},
			wantChanged: false,
		},
		{
			name:        "display text compares case-sensitively",
			wanted:      map[string]any{"displaytext": "Prod Cluster"},
			current:     map[string]any{"displaytext": "prod cluster"},
			wantChanged: true,
			wantBefore:  map[string]any{"displaytext": "prod cluster"},
			wantAfter:   map[string]any{"displaytext": "Prod Cluster"},
		},
		{
			name:        "numeric wanted coerces string current",
			wanted:      map[string]any{"size": 20},
			current:     map[string]any{"size": "20"},
			wantChanged: false,
		},
		{
			name:        "numeric mismatch records coerced before",
			wanted:      map[string]any{"size": 40},
			current:     map[string]any{"size": "20"},
			wantChanged: true,
			wantBefore:  map[string]any{"size": int64(20)},
			wantAfter:   map[string]any{"size": 40},
		},
		{
			name:        "float comparison",
			wanted:      map[string]any{"ratio": 1.5},
			current:     map[string]any{"ratio": "1.5"},
			wantChanged: false,
		},
		{
			name:        "absent field reports nil before",
			wanted:      map[string]any{"networkdomain": "example.com"},
			current:     map[string]any{"name": "acme"},
			wantChanged: true,
			wantBefore:  map[string]any{"networkdomain": nil},
			wantAfter:   map[string]any{"networkdomain": "example.com"},
		},
		{
			name:        "only keys restricts comparison",
			wanted:      map[string]any{"name": "other", "allocationstate": "Disabled"},
			current:     map[string]any{"name": "acme", "allocationstate": "Enabled"},
			onlyKeys:    []string{"allocationstate"},
			wantChanged: true,
			wantBefore:  map[string]any{"allocationstate": "Enabled"},
			wantAfter:   map[string]any{"allocationstate": "Disabled"},
		},
	}

	d := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := d.Compare(tt.wanted, tt.current, tt.onlyKeys...)
			if changed != tt.wantChanged {
				t.Fatalf("changed = %v, want %v (diff %+v)", changed, tt.wantChanged, got)
			}
			if !changed {
				if !got.Empty() {
					t.Fatalf("unchanged compare produced non-empty diff: %+v", got)
				}
				return
			}
			if !reflect.DeepEqual(got.Before, tt.wantBefore) {
				t.Errorf("before = %#v, want %#v", got.Before, tt.wantBefore)
			}
			if !reflect.DeepEqual(got.After, tt.wantAfter) {
				t.Errorf("after = %#v, want %#v", got.After, tt.wantAfter)
			}
		})
	}
}

// Applying the after side of a diff to the current map must converge: a
// second compare reports no change.
func TestCompareConverges(t *testing.T) {
	d := New()
	wanted := map[string]any{
		"name":          "acme",
		"displaytext":   "Acme Corp",
		"size":          40,
		"networkdomain": "example.com",
	}
	current := map[string]any{
		"name":        "acme",
		"displaytext": "acme corp",
		"size":        "20",
	}

	first, changed := d.Compare(wanted, current)
	if !changed {
		t.Fatal("expected initial compare to report change")
	}
	for k, v := range first.After {
		current[k] = v
	}

	second, changed := d.Compare(wanted, current)
	if changed {
		t.Fatalf("compare after applying diff still reports change: %+v", second)
	}
}
