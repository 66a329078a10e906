package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Range is an immutable set of acceptable versions, e.g. ">=14.0.0" or
// ">=0.2 <0.4". The zero Range accepts nothing.
type Range struct {
	raw         string
	constraints *semver.Constraints
}

// ParseRange parses a constraint expression. Comma or space separated terms
// are ANDed, "||" separates alternatives.
func ParseRange(s string) (Range, error) {
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Range{}, fmt.Errorf("parsing version range %q: %w", s, err)
	}
	return Range{raw: s, constraints: c}, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether v satisfies the range.
func (r Range) Contains(v Version) bool {
	if r.constraints == nil {
		return false
	}
	return r.constraints.Check(v.semver())
}

// String returns the range exactly as configured.
func (r Range) String() string {
	return r.raw
}

// MarshalText renders the configured expression.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.raw), nil
}
