package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/dbboot/internal/extension"
	"arc-framework/dbboot/internal/version"
)

func TestEngineVersion(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(&fakeDB{rows: map[string]*fakeRow{
		"server_version": {vals: []any{"16.2 (Debian 16.2-1.pgdg120+2)"}},
	}})

	got, err := repo.EngineVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "16.2 (Debian 16.2-1.pgdg120+2)", got)
}

func TestEngineVersion_Error(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(&fakeDB{rows: map[string]*fakeRow{
		"server_version": {err: errors.New("connection refused")},
	}})

	_, err := repo.EngineVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCreateExtension(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	repo := newTestRepo(db)

	require.NoError(t, repo.CreateExtension(context.Background(), extension.PgVectoRS))
	assert.Equal(t, []string{`CREATE EXTENSION IF NOT EXISTS "vectors"`}, db.executed())

	db.execErrs = map[string]error{"CREATE EXTENSION": errors.New("permission denied")}
	err := repo.CreateExtension(context.Background(), extension.PgVector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestExtensionVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     *fakeRow
		want    *version.Version
		wantErr bool
	}{
		{name: "installed", row: &fakeRow{vals: []any{"0.2.1"}}, want: ptr(version.New(0, 2, 1))},
		{name: "short version", row: &fakeRow{vals: []any{"0.7"}}, want: ptr(version.New(0, 7, 0))},
		{name: "not installed", row: &fakeRow{err: pgx.ErrNoRows}},
		{name: "query error", row: &fakeRow{err: errors.New("timeout")}, wantErr: true},
		{name: "garbage", row: &fakeRow{vals: []any{"dev"}}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newTestRepo(&fakeDB{rows: map[string]*fakeRow{"pg_extension": tc.row}})
			got, err := repo.ExtensionVersion(context.Background(), extension.PgVector)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAvailableExtensionVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  *fakeRow
		want *version.Version
	}{
		{name: "newer default", row: &fakeRow{vals: []any{"0.2.1", "0.2.0"}}, want: ptr(version.New(0, 2, 1))},
		{name: "already current", row: &fakeRow{vals: []any{"0.2.0", "0.2.0"}}},
		{name: "default older than installed", row: &fakeRow{vals: []any{"0.1.11", "0.2.0"}}},
		{name: "not installed", row: &fakeRow{err: pgx.ErrNoRows}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newTestRepo(&fakeDB{rows: map[string]*fakeRow{"pg_available_extensions": tc.row}})
			got, err := repo.AvailableExtensionVersion(context.Background(), extension.PgVectoRS)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUpdateExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		kind        extension.Kind
		installed   string
		target      version.Version
		wantExecs   []string
		wantRestart bool
	}{
		{
			name:      "pgvecto.rs minor bump upgrades storage",
			kind:      extension.PgVectoRS,
			installed: "0.2.1",
			target:    version.New(0, 3, 0),
			wantExecs: []string{
				`SET LOCAL search_path TO "$user", public, "vectors"`,
				`ALTER EXTENSION "vectors" UPDATE TO '0.3.0'`,
				"SELECT pgvectors_upgrade()",
			},
			wantRestart: true,
		},
		{
			name:      "pgvecto.rs patch bump rebuilds indexes",
			kind:      extension.PgVectoRS,
			installed: "0.2.0",
			target:    version.New(0, 2, 1),
			wantExecs: []string{
				`SET LOCAL search_path TO "$user", public, "vectors"`,
				`ALTER EXTENSION "vectors" UPDATE TO '0.2.1'`,
				`REINDEX INDEX "clip_index"`,
				`REINDEX INDEX "face_index"`,
			},
		},
		{
			name:      "pgvector",
			kind:      extension.PgVector,
			installed: "0.5.1",
			target:    version.New(0, 7, 0),
			wantExecs: []string{`ALTER EXTENSION "vector" UPDATE TO '0.7.0'`},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db := &fakeDB{rows: map[string]*fakeRow{"pg_extension": {vals: []any{tc.installed}}}}
			repo := newTestRepo(db)

			res, err := repo.UpdateExtension(context.Background(), tc.kind, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRestart, res.RestartRequired)
			assert.Equal(t, tc.wantExecs, db.executed())
			assert.Equal(t, 1, db.commits)
		})
	}
}

func TestUpdateExtension_Failures(t *testing.T) {
	t.Parallel()

	t.Run("alter fails", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{
			rows:     map[string]*fakeRow{"pg_extension": {vals: []any{"0.5.0"}}},
			execErrs: map[string]error{"ALTER EXTENSION": errors.New("no update path")},
		}
		_, err := newTestRepo(db).UpdateExtension(context.Background(), extension.PgVector, version.New(0, 6, 0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no update path")
		assert.Zero(t, db.commits)
	})

	t.Run("not installed", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{}
		_, err := newTestRepo(db).UpdateExtension(context.Background(), extension.PgVector, version.New(0, 6, 0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not installed")
		assert.Empty(t, db.executed())
	})

	t.Run("begin fails", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{
			rows:     map[string]*fakeRow{"pg_extension": {vals: []any{"0.5.0"}}},
			beginErr: errors.New("pool closed"),
		}
		_, err := newTestRepo(db).UpdateExtension(context.Background(), extension.PgVector, version.New(0, 6, 0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool closed")
	})
}

func TestShouldReindex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    extension.Kind
		row     *fakeRow
		want    bool
		wantErr bool
	}{
		{name: "pgvector never", kind: extension.PgVector, row: &fakeRow{vals: []any{"UPGRADE"}}},
		{name: "needs upgrade", kind: extension.PgVectoRS, row: &fakeRow{vals: []any{"UPGRADE"}}, want: true},
		{name: "normal", kind: extension.PgVectoRS, row: &fakeRow{vals: []any{"NORMAL"}}},
		{name: "index missing", kind: extension.PgVectoRS, row: &fakeRow{err: pgx.ErrNoRows}},
		{name: "stat view missing", kind: extension.PgVectoRS, row: &fakeRow{err: &pgconn.PgError{Code: "42P01"}}},
		{name: "undefined object", kind: extension.PgVectoRS, row: &fakeRow{err: &pgconn.PgError{Code: "42704"}}},
		{name: "other pg error", kind: extension.PgVectoRS, row: &fakeRow{err: &pgconn.PgError{Code: "57P01"}}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newTestRepo(&fakeDB{rows: map[string]*fakeRow{"pg_vector_index_stat": tc.row}})
			got, err := repo.ShouldReindex(context.Background(), tc.kind, extension.ClipIndex)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReindex(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{}
		require.NoError(t, newTestRepo(db).Reindex(context.Background(), extension.PgVectoRS, extension.FaceIndex))
		assert.Equal(t, []string{`REINDEX INDEX "face_index"`}, db.executed())
	})

	t.Run("pgvector failure is returned", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{execErrs: map[string]error{"REINDEX": errors.New("out of memory")}}
		err := newTestRepo(db).Reindex(context.Background(), extension.PgVector, extension.ClipIndex)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of memory")
	})

	t.Run("pgvecto.rs failure recreates the index", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{execErrs: map[string]error{"REINDEX": errors.New("index corrupted")}}
		require.NoError(t, newTestRepo(db).Reindex(context.Background(), extension.PgVectoRS, extension.ClipIndex))

		execs := db.executed()
		require.Len(t, execs, 4)
		assert.Equal(t, `DROP INDEX IF EXISTS "clip_index"`, execs[2])
		assert.Contains(t, execs[3], `CREATE INDEX IF NOT EXISTS "clip_index" ON "smart_search" USING vectors`)
		assert.Equal(t, 1, db.commits)
	})
}

func TestSearchPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"$user", public, "vectors"`, searchPath(extension.PgVectoRS))
	assert.Empty(t, searchPath(extension.PgVector))
}

func ptr[T any](v T) *T { return &v }
