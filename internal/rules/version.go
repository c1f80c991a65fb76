package rules

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is a supported schema version (a PostgreSQL major release).
type Version int

const (
	V11 Version = 11
	V12 Version = 12
	V13 Version = 13
	V14 Version = 14
	V15 Version = 15
)

// Versions lists every supported version in ascending order.
var Versions = []Version{V11, V12, V13, V14, V15}

// Valid reports whether v is one of Versions.
func (v Version) Valid() bool {
	return slices.Contains(Versions, v)
}

func (v Version) String() string {
	return "pg" + strconv.Itoa(int(v))
}

// MarshalText renders v as "pg13".
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText accepts every form ParseVersion does.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVersion accepts "13", "pg13" and "PG13".
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(strings.ToLower(raw), "pg")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q", s)
	}
	v := Version(n)
	if !v.Valid() {
		return 0, fmt.Errorf("unsupported schema version %q (supported: %s)", s, supportedList())
	}
	return v, nil
}

func supportedList() string {
	parts := make([]string, len(Versions))
	for i, v := range Versions {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ", ")
}

// versionSet gates a rule entry. A nil set means every version.
type versionSet []Version

func (s versionSet) has(v Version) bool {
	return s == nil || slices.Contains(s, v)
}

// UnmarshalYAML accepts a single spec or a sequence of specs. A spec is a
// version ("13"), an open range ("13+") or a closed range ("11-12").
func (s *versionSet) UnmarshalYAML(n *yaml.Node) error {
	var specs []string
	switch n.Kind {
	case yaml.ScalarNode:
		specs = []string{n.Value}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: version spec must be a scalar", item.Line)
			}
			specs = append(specs, item.Value)
		}
	default:
		return fmt.Errorf("line %d: in: expects a version or a list of versions", n.Line)
	}
	if len(specs) == 0 {
		return fmt.Errorf("line %d: in: empty version list matches nothing", n.Line)
	}

	out := versionSet{}
	for _, spec := range specs {
		vs, err := expandVersionSpec(spec)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		for _, v := range vs {
			if !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
	}
	slices.Sort(out)
	*s = out
	return nil
}

func expandVersionSpec(spec string) ([]Version, error) {
	spec = strings.TrimSpace(spec)
	if lo, ok := strings.CutSuffix(spec, "+"); ok {
		from, err := ParseVersion(lo)
		if err != nil {
			return nil, err
		}
		return versionsBetween(from, Versions[len(Versions)-1]), nil
	}
	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		from, err := ParseVersion(lo)
		if err != nil {
			return nil, err
		}
		to, err := ParseVersion(hi)
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, fmt.Errorf("version range %q is reversed", spec)
		}
		return versionsBetween(from, to), nil
	}
	v, err := ParseVersion(spec)
	if err != nil {
		return nil, err
	}
	return []Version{v}, nil
}

func versionsBetween(from, to Version) []Version {
	var out []Version
	for _, v := range Versions {
		if v >= from && v <= to {
			out = append(out, v)
		}
	}
	return out
}
