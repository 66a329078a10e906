package orchestrator

import "errors"

// Fatal failure kinds. Each aborts the bootstrap and is matched with errors.Is
// on the error returned by RunBootstrap.
var (
	ErrUnsupportedEngineVersion    = errors.New("unsupported engine version")
	ErrExtensionActivationFailed   = errors.New("extension activation failed")
	ErrExtensionNotInstalled       = errors.New("extension not installed")
	ErrNightlyVersionDetected      = errors.New("nightly extension version detected")
	ErrExtensionVersionUnsupported = errors.New("extension version unsupported")
	ErrReindexFailed               = errors.New("vector reindex failed")
	ErrMigrationsFailed            = errors.New("migrations failed")
)

// ErrExtensionUpgradeFailed is attached to the error diagnostic of a failed
// automatic upgrade. It never aborts a bootstrap.
var ErrExtensionUpgradeFailed = errors.New("extension upgrade failed")

// ErrBootstrapInProgress is returned when RunBootstrap is called while a
// bootstrap is already running in this process.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// Error is a fatal bootstrap failure. Phase is the state the machine was
// trying to reach, Hint is operator remediation text.
type Error struct {
	Phase   State
	Kind    error
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the failure kind and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
