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

// Package pluginid parses plugin unique identifiers and compares plugin
// versions. A unique identifier has the form "vendor/name:version" with an
// optional "@checksum" suffix assigned by the plugin daemon. The shorthand
// "vendor/name@version" is also accepted; an "@" suffix is a checksum only
// when a ":" version is present or the suffix reads as one (32+ hex chars).
package pluginid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidIdentifier is returned when a raw identifier cannot be parsed.
var ErrInvalidIdentifier = errors.New("invalid plugin unique identifier")

// Identifier is the parsed form of a plugin unique identifier.
type Identifier struct {
	Vendor   string
	Name     string
	Version  string
	Checksum string
}

// Parse parses a raw identifier string.
func Parse(raw string) (Identifier, error) {
	var ident Identifier

	rest := raw
	var suffix string
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		suffix = rest[at+1:]
		rest = rest[:at]
	}

	slash := strings.Index(rest, "/")
	if slash <= 0 {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	ident.Vendor = rest[:slash]
	rest = rest[slash+1:]

	colon := strings.LastIndex(rest, ":")
	switch {
	case colon > 0 && colon < len(rest)-1:
		ident.Name = rest[:colon]
		ident.Version = rest[colon+1:]
		ident.Checksum = suffix
	case suffix != "" && !looksLikeChecksum(suffix):
		// vendor/name@version shorthand
		ident.Name = rest
		ident.Version = suffix
	default:
		return Identifier{}, fmt.Errorf("%w: %q, missing version", ErrInvalidIdentifier, raw)
	}

	if ident.Vendor == "" || ident.Name == "" || ident.Version == "" || strings.Contains(ident.Name, "/") {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return ident, nil
}

// looksLikeChecksum reports whether s has the shape of a daemon-assigned
// checksum rather than a version.
func looksLikeChecksum(s string) bool {
	if len(s) < 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// String returns the normalized identifier form.
func (i Identifier) String() string {
	s := i.Vendor + "/" + i.Name + ":" + i.Version
	if i.Checksum != "" {
		s += "@" + i.Checksum
	}
	return s
}

// PluginID returns the version-independent plugin id ("vendor/name").
func (i Identifier) PluginID() string {
	return i.Vendor + "/" + i.Name
}

// SamePlugin reports whether two identifiers name the same plugin,
// ignoring version and checksum.
func SamePlugin(a, b Identifier) bool {
	return a.Vendor == b.Vendor && a.Name == b.Name
}

// Compare compares two version strings segment by segment. Numeric segments
// compare numerically, so 1.10.0 sorts after 1.9.0. Missing segments count
// as zero. Returns -1, 0 or 1.
func Compare(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for idx := 0; idx < n; idx++ {
		var sa, sb string
		if idx < len(as) {
			sa = as[idx]
		}
		if idx < len(bs) {
			sb = bs[idx]
		}
		if c := compareSegment(sa, sb); c != 0 {
			return c
		}
	}
	return 0
}

// compareSegment compares a single version segment. Each segment is split
// into a leading numeric part and a trailing suffix; numeric parts compare
// numerically and a segment without suffix sorts after one with a suffix
// ("1.0.0" > "1.0.0-beta").
func compareSegment(a, b string) int {
	na, ra := splitNumeric(a)
	nb, rb := splitNumeric(b)
	if na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	if ra == rb {
		return 0
	}
	// empty suffix means a release segment, which sorts last
	if ra == "" {
		return 1
	}
	if rb == "" {
		return -1
	}
	if ra < rb {
		return -1
	}
	return 1
}

// splitNumeric splits a segment into its leading number and the remainder.
func splitNumeric(s string) (int64, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, s
	}
	rest := strings.TrimPrefix(s[i:], "-")
	return n, rest
}

// IsPatchUpgrade reports whether candidate is a patch-level bump over
// current: same major and minor, strictly higher overall.
func IsPatchUpgrade(current, candidate string) bool {
	if Compare(candidate, current) <= 0 {
		return false
	}
	cs := strings.SplitN(current, ".", 3)
	ds := strings.SplitN(candidate, ".", 3)
	for idx := 0; idx < 2; idx++ {
		var a, b string
		if idx < len(cs) {
			a = cs[idx]
		}
		if idx < len(ds) {
			b = ds[idx]
		}
		if compareSegment(a, b) != 0 {
			return false
		}
	}
	return true
}
