package conda

import (
	"fmt"
	"strings"
)

// MatchSpec is a constraint over package records, parsed from the
// textual form
//
//	name[version-range][=build][::channel]
//
// Version ranges support the ==, !=, >=, <=, >, and < operators, the =
// and ".*" component-prefix forms, "," for conjunction, and "|" for
// disjunction. A MatchSpec is a pure predicate; it holds no mutable
// state.
type MatchSpec struct {
	// Name is the required, case-normalized package name.
	Name string
	// Build restricts the build string; a trailing or embedded "*"
	// matches any run of characters.
	Build string
	// BuildNumber optionally compares the candidate's build number.
	BuildNumber *BuildNumberMatch
	// Channel restricts candidates to a single origin channel.
	Channel string
	// RequiredFeatures must all be present among a candidate's
	// track features; ForbiddenFeatures must all be absent.
	RequiredFeatures  []string
	ForbiddenFeatures []string

	version *versionExpr
	raw     string
}

// BuildNumberMatch compares a candidate's build number against a
// fixed value.
type BuildNumberMatch struct {
	Op    string // one of "==", "!=", ">=", "<=", ">", "<"
	Value int
}

func (m *BuildNumberMatch) matches(n int) bool {
	switch m.Op {
	case "==":
		return n == m.Value
	case "!=":
		return n != m.Value
	case ">=":
		return n >= m.Value
	case "<=":
		return n <= m.Value
	case ">":
		return n > m.Value
	case "<":
		return n < m.Value
	}
	return false
}

// ParseMatchSpec parses the textual spec form described on MatchSpec.
func ParseMatchSpec(s string) (*MatchSpec, error) {
	spec := &MatchSpec{raw: strings.TrimSpace(s)}
	t := spec.raw
	if t == "" {
		return nil, fmt.Errorf("empty match spec")
	}

	if i := strings.LastIndex(t, "::"); i >= 0 {
		spec.Channel = strings.TrimSpace(t[i+2:])
		t = strings.TrimSpace(t[:i])
		if spec.Channel == "" {
			return nil, fmt.Errorf("empty channel in spec %q", s)
		}
	}

	end := 0
	for end < len(t) && isNameChar(t[end]) {
		end++
	}
	if end == 0 {
		return nil, fmt.Errorf("missing package name in spec %q", s)
	}
	spec.Name = NormalizeName(t[:end])
	rest := strings.TrimSpace(t[end:])
	if rest == "" {
		return spec, nil
	}

	version, build := splitBuild(rest)
	if build != "" {
		spec.Build = build
	}
	if version != "" {
		expr, err := parseVersionExpr(version)
		if err != nil {
			return nil, fmt.Errorf("spec %q: %v", s, err)
		}
		spec.version = expr
	}
	return spec, nil
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '.' || c == '-' || c == '_'
}

// splitBuild separates "[version][=build]". The build separator is the
// first "=" that is neither part of a comparison operator nor the
// leading prefix-match operator.
func splitBuild(s string) (version, build string) {
	for i := 1; i < len(s); i++ {
		if s[i] != '=' {
			continue
		}
		prev := s[i-1]
		if prev == '=' || prev == '!' || prev == '<' || prev == '>' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '=' {
			continue
		}
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Matches reports whether r satisfies every populated field of the
// spec.
func (m *MatchSpec) Matches(r *PackageRecord) bool {
	if m.Name != r.Name {
		return false
	}
	if m.version != nil && !m.version.matches(r.Version) {
		return false
	}
	if m.Build != "" && !globMatch(m.Build, r.Build) {
		return false
	}
	if m.BuildNumber != nil && !m.BuildNumber.matches(r.BuildNumber) {
		return false
	}
	if m.Channel != "" && m.Channel != r.Channel {
		return false
	}
	for _, f := range m.RequiredFeatures {
		if !containsString(r.TrackFeatures, f) {
			return false
		}
	}
	for _, f := range m.ForbiddenFeatures {
		if containsString(r.TrackFeatures, f) {
			return false
		}
	}
	return true
}

func (m *MatchSpec) String() string {
	if m.raw != "" {
		return m.raw
	}
	return m.Name
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// globMatch matches pattern against s where "*" matches any run of
// characters.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

// versionExpr is a disjunction of conjunctions of primitive version
// comparisons.
type versionExpr struct {
	groups [][]versionAtom
	raw    string
}

type versionAtom struct {
	op     string // "==", "!=", ">=", "<=", ">", "<", "=", ""
	ver    Version
	prefix bool // component-prefix match ("=1.8" or "1.8.*")
	negate bool // "!=1.8.*"
}

func parseVersionExpr(s string) (*versionExpr, error) {
	expr := &versionExpr{raw: s}
	for _, group := range strings.Split(s, "|") {
		var atoms []versionAtom
		for _, part := range strings.Split(group, ",") {
			atom, err := parseVersionAtom(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, atom)
		}
		expr.groups = append(expr.groups, atoms)
	}
	return expr, nil
}

func parseVersionAtom(s string) (versionAtom, error) {
	var atom versionAtom
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(s, op) {
			atom.op = op
			s = strings.TrimSpace(s[len(op):])
			break
		}
	}
	if s == "" {
		return atom, fmt.Errorf("version constraint %q has no operand", atom.op)
	}

	switch {
	case strings.HasSuffix(s, ".*"):
		atom.prefix = true
		s = strings.TrimSuffix(s, ".*")
	case strings.HasSuffix(s, "*"):
		atom.prefix = true
		s = strings.TrimSuffix(s, "*")
	}
	switch atom.op {
	case "=":
		atom.prefix = true
	case "!=":
		atom.negate = atom.prefix
	case ">=", "<=", ">", "<":
		if atom.prefix {
			return atom, fmt.Errorf("wildcard not allowed with %q", atom.op)
		}
	}

	ver, err := ParseVersion(s)
	if err != nil {
		return atom, err
	}
	atom.ver = ver
	return atom, nil
}

func (e *versionExpr) matches(v Version) bool {
	for _, group := range e.groups {
		all := true
		for _, atom := range group {
			if !atom.matches(v) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (a versionAtom) matches(v Version) bool {
	if a.negate {
		return !v.StartsWith(a.ver)
	}
	if a.prefix {
		return v.StartsWith(a.ver)
	}
	c := v.Compare(a.ver)
	switch a.op {
	case "==", "":
		return c == 0
	case "!=":
		return c != 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	}
	return false
}

// HasVersionConstraint reports whether the spec constrains versions at
// all.
func (m *MatchSpec) HasVersionConstraint() bool {
	return m.version != nil
}
