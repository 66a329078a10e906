// Package version parses loosely formatted engine and extension version strings
// into (major, minor, patch) triples and checks them against configured ranges.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalid is returned when a string carries no recognisable version.
var ErrInvalid = errors.New("invalid version")

// versionPattern matches the first N, N.N or N.N.N run in a string such as
// "14.10 (Debian 14.10-1.pgdg120+1)" or "v0.2.1".
var versionPattern = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// Version is a (major, minor, patch) triple.
type Version struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Patch uint64 `json:"patch"`
}

// New returns the version major.minor.patch.
func New(major, minor, patch uint64) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Coerce extracts the first version-like pattern from s. Missing minor or
// patch components default to zero ("14" is 14.0.0). A string with no digits
// is ErrInvalid, never 0.0.0.
func Coerce(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	var parts [3]uint64
	for i := range parts {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseUint(m[i+1], 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		parts[i] = n
	}
	return New(parts[0], parts[1], parts[2]), nil
}

// MustCoerce is like Coerce but panics on error. Intended for constants and tests.
func MustCoerce(s string) Version {
	v, err := Coerce(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version as major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether v is 0.0.0.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Equal reports whether v and o are the same triple.
func (v Version) Equal(o Version) bool {
	return v == o
}

// Compare returns -1, 0 or 1 when v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

// GreaterThan reports whether v is strictly newer than o.
func (v Version) GreaterThan(o Version) bool {
	return v.Compare(o) > 0
}

func (v Version) semver() *semver.Version {
	return semver.New(v.Major, v.Minor, v.Patch, "", "")
}
