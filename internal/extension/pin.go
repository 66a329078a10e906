package extension

import (
	"fmt"
	"strings"

	"arc-framework/dbboot/internal/version"
)

// Pin bounds how large a version bump is applied automatically at startup.
type Pin string

const (
	// PinNone never upgrades automatically.
	PinNone Pin = "none"
	// PinPatch upgrades within the same major.minor.
	PinPatch Pin = "patch"
	// PinMinor upgrades within the same major.
	PinMinor Pin = "minor"
	// PinRange upgrades to anything inside the supported range.
	PinRange Pin = "range"
)

// ParsePin parses a pin name. The empty string selects PinRange.
func ParsePin(s string) (Pin, error) {
	switch p := Pin(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PinRange, nil
	case PinNone, PinPatch, PinMinor, PinRange:
		return p, nil
	default:
		return "", fmt.Errorf("unknown upgrade pin %q (want none, patch, minor or range)", s)
	}
}

// AllowsUpgrade reports whether installed may be upgraded to target. Both the
// installed and the target version must lie inside supported, and target must
// be strictly newer.
func (p Pin) AllowsUpgrade(installed, target version.Version, supported version.Range) bool {
	if !supported.Contains(installed) || !supported.Contains(target) {
		return false
	}
	if !target.GreaterThan(installed) {
		return false
	}

	switch p {
	case PinPatch:
		return target.Major == installed.Major && target.Minor == installed.Minor
	case PinMinor:
		return target.Major == installed.Major
	case PinRange, "":
		return true
	default:
		return false
	}
}
