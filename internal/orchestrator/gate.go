package orchestrator

import (
	"fmt"

	"arc-framework/dbboot/internal/version"
)

// CheckEngineVersion coerces the version reported by the engine and checks it
// against r. It has no side effects and runs before any lock is taken.
func CheckEngineVersion(reported string, r version.Range) (version.Version, error) {
	v, err := version.Coerce(reported)
	if err == nil && r.Contains(v) {
		return v, nil
	}

	return version.Version{}, &Error{
		Phase:   StateVersionChecked,
		Kind:    ErrUnsupportedEngineVersion,
		Message: fmt.Sprintf("Invalid PostgreSQL version. Found %s, but needed %s. Please use a supported version.", reported, r),
		Err:     err,
	}
}
