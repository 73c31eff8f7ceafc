package conda

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed package version following the conda version
// grammar: an optional epoch ("2!1.0"), dot/underscore/hyphen separated
// components of mixed numeric and alphabetic runs, and an optional
// local version appended with "+". Versions are totally ordered;
// pre-release strings sort below their numeric base ("1.0a" < "1.0"),
// "dev" sorts below every other string, and "post" sorts above
// everything including numbers ("1.0.post1" > "1.0").
type Version struct {
	raw      string
	epoch    int
	segments [][]versionToken
	local    [][]versionToken
}

type versionToken struct {
	num   uint64
	str   string
	isNum bool
}

var zeroToken = versionToken{isNum: true}

// ParseVersion parses s according to the conda version grammar.
func ParseVersion(s string) (Version, error) {
	v := Version{raw: s}
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return v, fmt.Errorf("empty version string")
	}

	if i := strings.Index(t, "!"); i >= 0 {
		epoch, err := strconv.Atoi(t[:i])
		if err != nil || epoch < 0 {
			return v, fmt.Errorf("invalid epoch in version %q", s)
		}
		v.epoch = epoch
		t = t[i+1:]
	}

	var local string
	if i := strings.Index(t, "+"); i >= 0 {
		t, local = t[:i], t[i+1:]
	}

	var err error
	if v.segments, err = splitSegments(t); err != nil {
		return v, fmt.Errorf("invalid version %q: %v", s, err)
	}
	if local != "" {
		if v.local, err = splitSegments(local); err != nil {
			return v, fmt.Errorf("invalid local version %q: %v", s, err)
		}
	}
	return v, nil
}

func splitSegments(s string) ([][]versionToken, error) {
	if s == "" {
		return nil, fmt.Errorf("empty component")
	}
	normalized := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return '.'
		}
		return r
	}, s)
	parts := strings.Split(normalized, ".")
	segments := make([][]versionToken, 0, len(parts))
	for _, part := range parts {
		tokens, err := tokenize(part)
		if err != nil {
			return nil, err
		}
		segments = append(segments, tokens)
	}
	return segments, nil
}

// tokenize splits a component into alternating numeric and alphabetic
// runs. Components beginning with a letter get an implicit leading
// zero so that "a" and "0a" compare identically, matching conda.
func tokenize(s string) ([]versionToken, error) {
	var tokens []versionToken
	i := 0
	for i < len(s) {
		j := i
		if isDigit(s[i]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			n, err := strconv.ParseUint(s[i:j], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("numeric component %q too large", s[i:j])
			}
			tokens = append(tokens, versionToken{num: n, isNum: true})
		} else if isAlpha(s[i]) {
			for j < len(s) && isAlpha(s[j]) {
				j++
			}
			if len(tokens) == 0 {
				tokens = append(tokens, zeroToken)
			}
			tokens = append(tokens, versionToken{str: s[i:j]})
		} else {
			return nil, fmt.Errorf("unexpected character %q", s[i])
		}
		i = j
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty component")
	}
	return tokens, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' }

// Compare returns -1, 0, or 1 according to whether v orders before,
// equal to, or after o.
func (v Version) Compare(o Version) int {
	if v.epoch != o.epoch {
		if v.epoch < o.epoch {
			return -1
		}
		return 1
	}
	if c := compareSegmentLists(v.segments, o.segments); c != 0 {
		return c
	}
	return compareSegmentLists(v.local, o.local)
}

// Equal reports whether v and o occupy the same position in the
// version order. Distinct spellings ("1.0" and "1.0.0") may be equal.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// StartsWith reports whether prefix is a component-wise prefix of v,
// the relation behind "=1.8" and "1.8.*" style constraints.
func (v Version) StartsWith(prefix Version) bool {
	if v.epoch != prefix.epoch {
		return false
	}
	if len(prefix.segments) > len(v.segments) {
		return false
	}
	for i, seg := range prefix.segments {
		if compareTokenLists(seg, v.segments[i]) != 0 {
			return false
		}
	}
	return true
}

func (v Version) String() string {
	return v.raw
}

// MarshalJSON encodes the version as its original spelling.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func compareSegmentLists(a, b [][]versionToken) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	pad := []versionToken{zeroToken}
	for i := 0; i < n; i++ {
		as, bs := pad, pad
		if i < len(a) {
			as = a[i]
		}
		if i < len(b) {
			bs = b[i]
		}
		if c := compareTokenLists(as, bs); c != 0 {
			return c
		}
	}
	return 0
}

func compareTokenLists(a, b []versionToken) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		at, bt := zeroToken, zeroToken
		if i < len(a) {
			at = a[i]
		}
		if i < len(b) {
			bt = b[i]
		}
		if c := compareTokens(at, bt); c != 0 {
			return c
		}
	}
	return 0
}

// compareTokens orders a single numeric or alphabetic run. "dev" is
// the lowest string, "post" exceeds everything including numbers, and
// any other string sorts below any number.
func compareTokens(a, b versionToken) int {
	if a.isNum && b.isNum {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	}
	if !a.isNum && !b.isNum {
		if a.str == b.str {
			return 0
		}
		switch {
		case a.str == "dev" || b.str == "post":
			return -1
		case b.str == "dev" || a.str == "post":
			return 1
		}
		return strings.Compare(a.str, b.str)
	}
	// Mixed: the string side loses unless it is "post".
	if a.isNum {
		if b.str == "post" {
			return -1
		}
		return 1
	}
	if a.str == "post" {
		return 1
	}
	return -1
}
