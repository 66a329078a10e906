package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arc-framework/dbboot/internal/extension"
)

// SQLSTATE codes treated as "nothing to reindex".
const (
	sqlStateUndefinedTable  = "42P01"
	sqlStateUndefinedObject = "42704"
)

// ShouldReindex reports whether index needs a rebuild after an extension
// update. Only pgvecto.rs tracks this, through pg_vector_index_stat; pgvector
// indexes never need it.
func (r *Repository) ShouldReindex(ctx context.Context, kind extension.Kind, index extension.Index) (bool, error) {
	if kind != extension.PgVectoRS {
		return false, nil
	}

	var status string
	err := r.db.QueryRow(ctx,
		"SELECT idx_status FROM pg_vector_index_stat WHERE indexname = $1",
		string(index),
	).Scan(&status)

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case errors.As(err, &pgErr) && (pgErr.Code == sqlStateUndefinedTable || pgErr.Code == sqlStateUndefinedObject):
		slog.DebugContext(ctx, "index stats unavailable", "index", string(index), "code", pgErr.Code)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("reading %s index status: %w", index, err)
	}
	return status == "UPGRADE", nil
}

// Reindex rebuilds index. If REINDEX fails on pgvecto.rs the index is dropped
// and recreated from scratch with the default HNSW options.
func (r *Repository) Reindex(ctx context.Context, kind extension.Kind, index extension.Index) error {
	ident := pgx.Identifier{string(index)}.Sanitize()

	_, err := r.db.Exec(ctx, "REINDEX INDEX "+ident)
	if err == nil {
		return nil
	}
	if kind != extension.PgVectoRS {
		return fmt.Errorf("reindexing %s: %w", index, err)
	}

	slog.WarnContext(ctx, "REINDEX failed; recreating index", "index", string(index), "err", err)

	return r.inTx(ctx, kind, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP INDEX IF EXISTS "+ident); err != nil {
			return fmt.Errorf("dropping %s: %w", index, err)
		}
		if _, err := tx.Exec(ctx, createVectorsIndexSQL(index)); err != nil {
			return fmt.Errorf("recreating %s: %w", index, err)
		}
		return nil
	})
}

func createVectorsIndexSQL(index extension.Index) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING vectors (embedding vector_cos_ops) "+
			"WITH (options = $$[indexing.hnsw]\nm = 16\nef_construction = 300$$)",
		pgx.Identifier{string(index)}.Sanitize(),
		pgx.Identifier{index.Table()}.Sanitize(),
	)
}
