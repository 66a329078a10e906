package database

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrateRepo(m *fakeMigrator, newErr error) *Repository {
	return &Repository{
		db: &fakeDB{},
		newMigrator: func() (migrator, error) {
			if newErr != nil {
				return nil, newErr
			}
			return m, nil
		},
	}
}

func TestRunMigrations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		m          *fakeMigrator
		newErr     error
		wantErrSub string
	}{
		{name: "applied", m: &fakeMigrator{version: 3}},
		{name: "no change", m: &fakeMigrator{upErr: migrate.ErrNoChange, version: 3}},
		{name: "empty source", m: &fakeMigrator{upErr: migrate.ErrNoChange, versionErr: migrate.ErrNilVersion}},
		{name: "up fails", m: &fakeMigrator{upErr: errors.New("syntax error")}, wantErrSub: "syntax error"},
		{name: "dirty", m: &fakeMigrator{version: 2, dirty: true}, wantErrSub: "dirty"},
		{name: "version fails", m: &fakeMigrator{versionErr: errors.New("lost connection")}, wantErrSub: "lost connection"},
		{name: "init fails", newErr: errors.New("bad url"), wantErrSub: "bad url"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := migrateRepo(tc.m, tc.newErr).RunMigrations(context.Background())
			if tc.wantErrSub != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErrSub)
			} else {
				require.NoError(t, err)
			}
			if tc.m != nil {
				assert.True(t, tc.m.closed)
			}
		})
	}
}

func TestRunMigrations_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{blockUp: true, stopped: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- migrateRepo(m, nil).RunMigrations(ctx) }()

	cancel()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, m.closed)
	case <-time.After(5 * time.Second):
		t.Fatal("RunMigrations did not return after cancellation")
	}
}

func TestRunMigrations_DeadlineExceeded(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{blockUp: true, stopped: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := migrateRepo(m, nil).RunMigrations(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmbeddedMigrations_Paired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.Len(t, ups, 3)
	assert.Len(t, downs, len(ups))
}
