package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"arc-framework/dbboot/internal/orchestrator"
)

// sessionConn is a pooled connection pinned for the lifetime of a session
// level advisory lock.
type sessionConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Release returns the connection to the pool.
	Release()
	// Destroy closes the connection instead of returning it, dropping any
	// session state including advisory locks.
	Destroy(ctx context.Context) error
}

type poolConn struct {
	*pgxpool.Conn
}

func (c *poolConn) Destroy(ctx context.Context) error {
	return c.Conn.Hijack().Close(ctx)
}

// WithLock runs fn while holding the session-level advisory lock for lock.
// Acquisition blocks until any other session releases the lock or ctx is
// done. The lock is released on every exit path, panics included.
func (r *Repository) WithLock(ctx context.Context, lock orchestrator.LockKind, fn func(ctx context.Context) error) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for %s lock: %w", lock, err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", int64(lock)); err != nil {
		conn.Release()
		return fmt.Errorf("acquiring %s lock: %w", lock, err)
	}
	slog.DebugContext(ctx, "advisory lock acquired", "lock", lock.String())

	defer r.unlock(ctx, conn, lock)
	return fn(ctx)
}

// unlock releases lock on conn. If the release cannot be confirmed the
// connection is closed so the lock dies with the session.
func (r *Repository) unlock(ctx context.Context, conn sessionConn, lock orchestrator.LockKind) {
	ctx = context.WithoutCancel(ctx)

	var released bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", int64(lock)).Scan(&released)
	if err == nil && released {
		conn.Release()
		slog.DebugContext(ctx, "advisory lock released", "lock", lock.String())
		return
	}

	slog.WarnContext(ctx, "advisory unlock not confirmed; closing session", "lock", lock.String(), "released", released, "err", err)
	if cerr := conn.Destroy(ctx); cerr != nil {
		slog.WarnContext(ctx, "closing lock session failed", "lock", lock.String(), "err", cerr)
	}
}
