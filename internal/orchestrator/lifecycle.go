package orchestrator

import (
	"context"
	"fmt"

	"arc-framework/dbboot/internal/extension"
	"arc-framework/dbboot/internal/version"
)

// extensionManager activates, verifies and upgrades the vector extension. All
// of its methods run with the migration lock held.
type extensionManager struct {
	repo    Repository
	diag    Diagnostics
	metrics *Metrics
}

// activate creates the extension if it does not exist yet.
func (m *extensionManager) activate(ctx context.Context, spec extension.Spec) error {
	if err := m.repo.CreateExtension(ctx, spec.Kind); err != nil {
		other := spec.Kind.Other()
		return &Error{
			Phase:   StateExtensionActivated,
			Kind:    ErrExtensionActivationFailed,
			Message: fmt.Sprintf("Failed to activate %s extension.", spec.Name()),
			Hint: fmt.Sprintf(`Please ensure the Postgres instance has %[1]s installed.

If the Postgres instance already has %[1]s installed, dbboot may not have the necessary permissions to activate it.
In this case, please run 'CREATE EXTENSION IF NOT EXISTS %[2]s' manually as a superuser.

Alternatively, if your Postgres instance has %[3]s, you may use this instead by setting 'database.vector_extension' (env DBBOOT_DATABASE_VECTOR_EXTENSION=%[3]s).
Note that switching between the two extensions after a successful startup is not supported.`,
				spec.Name(), spec.Kind, other.DisplayName()),
			Err: err,
		}
	}
	return nil
}

// installedVersion reads the installed version. An extension that is absent
// after activation reported success is a fatal invariant violation.
func (m *extensionManager) installedVersion(ctx context.Context, spec extension.Spec) (version.Version, error) {
	v, err := m.repo.ExtensionVersion(ctx, spec.Kind)
	if err != nil {
		return version.Version{}, &Error{
			Phase:   StateExtensionVerified,
			Message: fmt.Sprintf("Could not read the installed %s version.", spec.Name()),
			Err:     err,
		}
	}
	if v == nil {
		return version.Version{}, &Error{
			Phase:   StateExtensionVerified,
			Kind:    ErrExtensionNotInstalled,
			Message: fmt.Sprintf("Unexpected: The %s extension is not installed.", spec.Name()),
		}
	}
	return *v, nil
}

// maybeUpgrade applies a newer available version when the pin policy allows
// it. Upgrade problems are reported and absorbed; only a missing extension on
// the final re-read is fatal.
func (m *extensionManager) maybeUpgrade(ctx context.Context, spec extension.Spec, installed version.Version) (version.Version, error) {
	available, err := m.repo.AvailableExtensionVersion(ctx, spec.Kind)
	if err != nil {
		m.diag.Emit(ctx, Diagnostic{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("Could not determine whether a newer %s version is available; skipping automatic update.", spec.Name()),
			Err:      err,
		})
	}

	if available != nil {
		if spec.Pin.AllowsUpgrade(installed, *available, spec.Range) {
			m.upgrade(ctx, spec, installed, *available)
		} else {
			m.diag.Emit(ctx, Diagnostic{
				Severity: SeverityLog,
				Message: fmt.Sprintf("%s %s is available but outside the '%s' upgrade policy for %s; not updating automatically.",
					spec.Name(), available, spec.Pin, spec.Range),
			})
		}
	}

	// The attempt may have partially applied, so the version is always re-read.
	return m.installedVersion(ctx, spec)
}

func (m *extensionManager) upgrade(ctx context.Context, spec extension.Spec, installed, target version.Version) {
	m.diag.Emit(ctx, Diagnostic{
		Severity: SeverityLog,
		Message:  fmt.Sprintf("Updating %s extension to %s", spec.Name(), target),
	})

	res, err := m.repo.UpdateExtension(ctx, spec.Kind, target)
	if err != nil {
		m.metrics.observeUpgrade("failed")
		m.diag.Emit(ctx, Diagnostic{
			Severity: SeverityWarn,
			Message: fmt.Sprintf("The %s extension version is %s, but %s is available. dbboot attempted to update the extension, but failed to do so.",
				spec.Name(), installed, target),
			Hint: fmt.Sprintf("This may be because dbboot does not have the necessary permissions to update the extension.\n"+
				"Please run 'ALTER EXTENSION %s UPDATE' manually as a superuser.", spec.Kind),
		})
		m.diag.Emit(ctx, Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Failed to update %s extension", spec.Name()),
			Err:      fmt.Errorf("%w: %w", ErrExtensionUpgradeFailed, err),
		})
		return
	}

	if res.RestartRequired {
		m.metrics.observeUpgrade("restart-required")
		m.diag.Emit(ctx, Diagnostic{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("The %s extension has been updated to %s.", spec.Name(), target),
			Hint:     "Please restart the Postgres instance to complete the update.",
		})
		return
	}
	m.metrics.observeUpgrade("ok")
}

// verifyVersion rejects nightly builds and versions outside the supported range.
func (m *extensionManager) verifyVersion(spec extension.Spec, v version.Version) error {
	if v.IsZero() {
		return &Error{
			Phase:   StateExtensionVerified,
			Kind:    ErrNightlyVersionDetected,
			Message: fmt.Sprintf("The %s extension version is %s, which means it is a nightly release.", spec.Name(), v),
			Hint:    fmt.Sprintf("Please run 'DROP EXTENSION IF EXISTS %s' and switch to a release version.", spec.Kind),
		}
	}

	if !spec.Range.Contains(v) {
		return &Error{
			Phase:   StateExtensionVerified,
			Kind:    ErrExtensionVersionUnsupported,
			Message: fmt.Sprintf("The %s extension version is %s, but dbboot only supports %s.", spec.Name(), v, spec.Range),
			Hint: fmt.Sprintf(`If the Postgres instance already has a compatible version installed, dbboot may not have the necessary permissions to activate it.
In this case, please run 'ALTER EXTENSION %s UPDATE' manually as a superuser.

Otherwise, please update the version of %s in the Postgres instance to a compatible version.`, spec.Kind, spec.Name()),
		}
	}
	return nil
}
