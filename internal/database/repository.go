// Package database implements the bootstrap repository on top of a pgx
// connection pool: version queries, extension DDL, advisory locks, vector
// reindexing and schema migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"arc-framework/dbboot/internal/config"
	"arc-framework/dbboot/internal/extension"
	"arc-framework/dbboot/internal/orchestrator"
	"arc-framework/dbboot/internal/version"
)

// querier abstracts the pgxpool.Pool methods used by Repository so that
// tests can inject a fake without standing up a real database.
type querier interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository satisfies orchestrator.Repository and orchestrator.HealthProber.
type Repository struct {
	db          querier
	acquire     func(ctx context.Context) (sessionConn, error)
	newMigrator func() (migrator, error)
	cb          *gobreaker.CircuitBreaker
	closeFn     func()
}

// Open creates a Repository for cfg. The pool connects lazily; no connection
// is made until the first query. When kind installs into its own schema, that
// schema is appended to the search_path of every session.
func Open(ctx context.Context, cfg config.DatabaseConfig, kind extension.Kind, cb *gobreaker.CircuitBreaker) (*Repository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	// One connection is pinned by the advisory lock for the whole critical section.
	if poolCfg.MaxConns < 2 {
		poolCfg.MaxConns = 2
	}

	migrateURL := cfg.MigrateURL()
	if path := searchPath(kind); path != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = path
		migrateURL += "&search_path=" + url.QueryEscape(path)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return &Repository{
		db: pool,
		acquire: func(ctx context.Context) (sessionConn, error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return &poolConn{Conn: c}, nil
		},
		newMigrator: embeddedMigrator(migrateURL),
		cb:          cb,
		closeFn:     pool.Close,
	}, nil
}

// Close releases every pooled connection.
func (r *Repository) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}

// EngineVersion returns the server_version setting, e.g. "16.2 (Debian 16.2-1.pgdg120+2)".
func (r *Repository) EngineVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.db.QueryRow(ctx, "SHOW server_version").Scan(&v); err != nil {
		return "", fmt.Errorf("querying server_version: %w", err)
	}
	return v, nil
}

// CreateExtension installs kind if it is not installed yet.
func (r *Repository) CreateExtension(ctx context.Context, kind extension.Kind) error {
	sql := "CREATE EXTENSION IF NOT EXISTS " + pgx.Identifier{string(kind)}.Sanitize()
	if _, err := r.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating extension %s: %w", kind, err)
	}
	return nil
}

// ExtensionVersion returns the installed version of kind, or nil when the
// extension is not installed.
func (r *Repository) ExtensionVersion(ctx context.Context, kind extension.Kind) (*version.Version, error) {
	var raw string
	err := r.db.QueryRow(ctx,
		"SELECT extversion FROM pg_catalog.pg_extension WHERE extname = $1",
		string(kind),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s version: %w", kind, err)
	}
	return parseVersion(kind, raw)
}

// AvailableExtensionVersion returns the version ALTER EXTENSION ... UPDATE
// would move to, or nil when the extension is not installed or already at it.
func (r *Repository) AvailableExtensionVersion(ctx context.Context, kind extension.Kind) (*version.Version, error) {
	var defaultRaw, installedRaw string
	err := r.db.QueryRow(ctx,
		`SELECT default_version, installed_version
		   FROM pg_catalog.pg_available_extensions
		  WHERE name = $1 AND installed_version IS NOT NULL`,
		string(kind),
	).Scan(&defaultRaw, &installedRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying available %s version: %w", kind, err)
	}

	available, err := parseVersion(kind, defaultRaw)
	if err != nil {
		return nil, err
	}
	installed, err := parseVersion(kind, installedRaw)
	if err != nil {
		return nil, err
	}
	if !available.GreaterThan(*installed) {
		return nil, nil
	}
	return available, nil
}

// UpdateExtension moves kind to target inside a transaction. For pgvecto.rs a
// minor or major bump rewrites index storage with pgvectors_upgrade() and
// needs an engine restart; a patch bump rebuilds the vector indexes in place.
func (r *Repository) UpdateExtension(ctx context.Context, kind extension.Kind, target version.Version) (orchestrator.UpdateResult, error) {
	current, err := r.ExtensionVersion(ctx, kind)
	if err != nil {
		return orchestrator.UpdateResult{}, err
	}
	if current == nil {
		return orchestrator.UpdateResult{}, fmt.Errorf("extension %s is not installed", kind)
	}

	var res orchestrator.UpdateResult
	err = r.inTx(ctx, kind, func(tx pgx.Tx) error {
		sql := fmt.Sprintf("ALTER EXTENSION %s UPDATE TO %s",
			pgx.Identifier{string(kind)}.Sanitize(), quoteLiteral(target.String()))
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("updating extension %s to %s: %w", kind, target, err)
		}

		if kind != extension.PgVectoRS {
			return nil
		}

		if target.Major != current.Major || target.Minor != current.Minor {
			if _, err := tx.Exec(ctx, "SELECT pgvectors_upgrade()"); err != nil {
				return fmt.Errorf("upgrading pgvecto.rs index storage: %w", err)
			}
			res.RestartRequired = true
			return nil
		}

		for _, index := range extension.Indexes {
			if _, err := tx.Exec(ctx, "REINDEX INDEX "+pgx.Identifier{string(index)}.Sanitize()); err != nil {
				return fmt.Errorf("reindexing %s: %w", index, err)
			}
		}
		return nil
	})
	if err != nil {
		return orchestrator.UpdateResult{}, err
	}
	return res, nil
}

// inTx runs fn in a transaction with the extension schema on the search_path.
func (r *Repository) inTx(ctx context.Context, kind extension.Kind, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if path := searchPath(kind); path != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+path); err != nil {
			return fmt.Errorf("setting search_path: %w", err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func searchPath(kind extension.Kind) string {
	if schema := kind.Schema(); schema != "" {
		return `"$user", public, ` + pgx.Identifier{schema}.Sanitize()
	}
	return ""
}

func parseVersion(kind extension.Kind, raw string) (*version.Version, error) {
	v, err := version.Coerce(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s version: %w", kind, err)
	}
	slog.Debug("extension version", "extension", string(kind), "raw", raw, "parsed", v.String())
	return &v, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
