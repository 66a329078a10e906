// Package orchestrator sequences the database bootstrap: engine version gate,
// vector extension lifecycle, vector reindexing and schema migrations, with
// everything after the version gate running under a cross-process lock.
package orchestrator

import (
	"context"

	"arc-framework/dbboot/internal/extension"
	"arc-framework/dbboot/internal/version"
)

// Repository is the database surface the bootstrap drives. It is satisfied by
// *database.Repository.
type Repository interface {
	// EngineVersion returns the version string reported by the engine.
	EngineVersion(ctx context.Context) (string, error)
	// WithLock runs fn while holding lock and releases the lock on every
	// exit path. fn's error is returned unchanged.
	WithLock(ctx context.Context, lock LockKind, fn func(ctx context.Context) error) error
	CreateExtension(ctx context.Context, kind extension.Kind) error
	// ExtensionVersion returns nil when the extension is not installed.
	ExtensionVersion(ctx context.Context, kind extension.Kind) (*version.Version, error)
	// AvailableExtensionVersion returns nil when nothing newer than the
	// installed version is available.
	AvailableExtensionVersion(ctx context.Context, kind extension.Kind) (*version.Version, error)
	UpdateExtension(ctx context.Context, kind extension.Kind, target version.Version) (UpdateResult, error)
	ShouldReindex(ctx context.Context, kind extension.Kind, index extension.Index) (bool, error)
	Reindex(ctx context.Context, kind extension.Kind, index extension.Index) error
	RunMigrations(ctx context.Context) error
}

// HealthProber is satisfied by *database.Repository.
type HealthProber interface {
	Probe(ctx context.Context) ProbeResult
}

// Notifier is told about every finished bootstrap attempt. It is satisfied by
// *events.Publisher.
type Notifier interface {
	Publish(ctx context.Context, result *BootstrapResult) error
}
