// Copyright 2025 Plugrail Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pluginid

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    Identifier
		wantErr bool
	}{
		{"acme/foo:1.0.0", Identifier{Vendor: "acme", Name: "foo", Version: "1.0.0"}, false},
		{"acme/foo:1.0.0@deadbeef", Identifier{Vendor: "acme", Name: "foo", Version: "1.0.0", Checksum: "deadbeef"}, false},
		{"acme/foo@1.0.0", Identifier{Vendor: "acme", Name: "foo", Version: "1.0.0"}, false},
		{"acme/foo@1.0.0-beta", Identifier{Vendor: "acme", Name: "foo", Version: "1.0.0-beta"}, false},
		// 32+ hex chars after @ is a checksum, not a version
		{"acme/foo@0123456789abcdef0123456789abcdef", Identifier{}, true},
		{"acme/foo", Identifier{}, true},
		{"acme/foo:", Identifier{}, true},
		{"/foo:1.0.0", Identifier{}, true},
		{"acme/:1.0.0", Identifier{}, true},
		{"foo:1.0.0", Identifier{}, true},
		{"", Identifier{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.raw, got)
				}
				if !errors.Is(err, ErrInvalidIdentifier) {
					t.Errorf("Parse(%q) error = %v, want ErrInvalidIdentifier", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	raw := "acme/foo:1.2.3@cafe"
	ident, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if ident.String() != raw {
		t.Errorf("String() = %q, want %q", ident.String(), raw)
	}
	if ident.PluginID() != "acme/foo" {
		t.Errorf("PluginID() = %q, want %q", ident.PluginID(), "acme/foo")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.9.0", "1.10.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"2.0.0", "1.99.99", 1},
		{"1.0", "1.0.0", 0},
		{"1.0.1", "1.0", 1},
		{"0.0.1", "0.0.2", -1},
		{"1.0.0-beta", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			// antisymmetry
			if got := Compare(tt.b, tt.a); got != -tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

func TestCompareTotalOrder(t *testing.T) {
	ordered := []string{"0.9.0", "1.0.0-alpha", "1.0.0", "1.0.1", "1.2.0", "1.10.0", "2.0.0"}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			var want int
			switch {
			case i < j:
				want = -1
			case i > j:
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%q, %q) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestSamePlugin(t *testing.T) {
	a, _ := Parse("acme/foo:1.0.0")
	b, _ := Parse("acme/foo:2.0.0@cafe")
	c, _ := Parse("acme/bar:1.0.0")

	if !SamePlugin(a, b) {
		t.Error("expected acme/foo:1.0.0 and acme/foo:2.0.0 to be the same plugin")
	}
	if SamePlugin(a, c) {
		t.Error("expected acme/foo and acme/bar to be different plugins")
	}
}

func TestIsPatchUpgrade(t *testing.T) {
	tests := []struct {
		current, candidate string
		want               bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.0", "1.0.10", true},
		{"1.0.1", "1.0.0", false},
		{"1.0.0", "1.1.0", false},
		{"1.0.0", "2.0.0", false},
		{"1.0.0", "1.0.0", false},
	}

	for _, tt := range tests {
		if got := IsPatchUpgrade(tt.current, tt.candidate); got != tt.want {
			t.Errorf("IsPatchUpgrade(%q, %q) = %v, want %v", tt.current, tt.candidate, got, tt.want)
		}
	}
}
