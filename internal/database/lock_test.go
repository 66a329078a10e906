package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/dbboot/internal/orchestrator"
)

func lockRepo(conn *fakeConn, acquireErr error) *Repository {
	return &Repository{
		db: &fakeDB{},
		acquire: func(context.Context) (sessionConn, error) {
			if acquireErr != nil {
				return nil, acquireErr
			}
			return conn, nil
		},
	}
}

func TestWithLock(t *testing.T) {
	t.Parallel()

	fnErr := errors.New("migration failed")

	tests := []struct {
		name          string
		fnErr         error
		unlockRow     *fakeRow
		wantReleased  int
		wantDestroyed int
	}{
		{name: "success", wantReleased: 1},
		{name: "fn error still unlocks", fnErr: fnErr, wantReleased: 1},
		{name: "unlock not held destroys session", unlockRow: &fakeRow{vals: []any{false}}, wantDestroyed: 1},
		{name: "unlock error destroys session", unlockRow: &fakeRow{err: errors.New("conn reset")}, wantDestroyed: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn := &fakeConn{unlockRow: tc.unlockRow}
			repo := lockRepo(conn, nil)

			called := false
			err := repo.WithLock(context.Background(), orchestrator.LockMigrations, func(context.Context) error {
				called = true
				assert.Equal(t, []string{"SELECT pg_advisory_lock($1)"}, conn.execs)
				return tc.fnErr
			})

			assert.True(t, called)
			assert.ErrorIs(t, err, tc.fnErr)
			if tc.fnErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{"SELECT pg_advisory_lock($1)", "SELECT pg_advisory_unlock($1)"}, conn.execs)
			assert.Equal(t, tc.wantReleased, conn.released)
			assert.Equal(t, tc.wantDestroyed, conn.destroyed)
		})
	}
}

func TestWithLock_AcquireFailures(t *testing.T) {
	t.Parallel()

	t.Run("no connection", func(t *testing.T) {
		t.Parallel()
		repo := lockRepo(nil, errors.New("too many clients"))
		err := repo.WithLock(context.Background(), orchestrator.LockMigrations, func(context.Context) error {
			t.Fatal("fn must not run")
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many clients")
	})

	t.Run("lock statement fails", func(t *testing.T) {
		t.Parallel()
		conn := &fakeConn{execErr: context.DeadlineExceeded}
		repo := lockRepo(conn, nil)
		err := repo.WithLock(context.Background(), orchestrator.LockMigrations, func(context.Context) error {
			t.Fatal("fn must not run")
			return nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "migrations lock")
		assert.Equal(t, 1, conn.released)
	})
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	repo := lockRepo(conn, nil)

	assert.Panics(t, func() {
		_ = repo.WithLock(context.Background(), orchestrator.LockMigrations, func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, conn.released)
}

func TestWithLock_CancelledContextStillUnlocks(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	repo := lockRepo(conn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := repo.WithLock(ctx, orchestrator.LockMigrations, func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.released)
}
