package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationsTable is golang-migrate's bookkeeping table.
const migrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrator is the subset of *migrate.Migrate used by RunMigrations, plus
// Stop which requests a graceful stop after the current migration.
type migrator interface {
	Up() error
	Version() (uint, bool, error)
	Close() (error, error)
	Stop()
}

type stoppableMigrate struct {
	*migrate.Migrate
}

func (m stoppableMigrate) Stop() {
	select {
	case m.GracefulStop <- true:
	default:
	}
}

func embeddedMigrator(databaseURL string) func() (migrator, error) {
	return func() (migrator, error) {
		src, err := iofs.New(migrationFS, "migrations")
		if err != nil {
			return nil, fmt.Errorf("loading embedded migrations: %w", err)
		}
		m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("initialising migrator: %w", err)
		}
		return stoppableMigrate{Migrate: m}, nil
	}
}

// RunMigrations applies every pending embedded migration. It is a no-op when
// the schema is already current. When ctx is done the runner stops after the
// migration in flight and ctx's error is returned.
func (r *Repository) RunMigrations(ctx context.Context) error {
	m, err := r.newMigrator()
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if cerr := errors.Join(srcErr, dbErr); cerr != nil {
			slog.WarnContext(ctx, "closing migrator failed", "err", cerr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			slog.WarnContext(ctx, "stopping migrations", "err", ctx.Err())
			m.Stop()
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrations interrupted: %w", err)
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.InfoContext(ctx, "no migrations applied")
	case err != nil:
		return fmt.Errorf("reading migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration %d left the schema dirty", v)
	default:
		slog.InfoContext(ctx, "migrations up to date", "version", v)
	}
	return nil
}
