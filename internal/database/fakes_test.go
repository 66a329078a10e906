package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row. Values are assigned positionally.
type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.vals) {
			break
		}
		switch ptr := d.(type) {
		case *string:
			*ptr = r.vals[i].(string)
		case *bool:
			*ptr = r.vals[i].(bool)
		case *int:
			*ptr = r.vals[i].(int)
		default:
			return fmt.Errorf("fakeRow: unsupported dest %T", d)
		}
	}
	return nil
}

// fakeDB implements querier. Rows are matched by SQL substring, exec errors
// by SQL prefix.
type fakeDB struct {
	mu       sync.Mutex
	execs    []string
	rows     map[string]*fakeRow
	execErrs map[string]error
	pingErr  error
	beginErr error
	commits  int
}

func (f *fakeDB) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	for prefix, err := range f.execErrs {
		if strings.HasPrefix(sql, prefix) {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	for key, row := range f.rows {
		if strings.Contains(sql, key) {
			return row
		}
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (f *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execs...)
}

// fakeTx routes statements to its fakeDB. Unused pgx.Tx methods panic.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error { return nil }

// fakeConn implements sessionConn.
type fakeConn struct {
	execs     []string
	execErr   error
	unlockRow *fakeRow
	released  int
	destroyed int
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.CommandTag{}, c.execErr
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.execs = append(c.execs, sql)
	if c.unlockRow != nil {
		return c.unlockRow
	}
	return &fakeRow{vals: []any{true}}
}

func (c *fakeConn) Release() { c.released++ }

func (c *fakeConn) Destroy(_ context.Context) error {
	c.destroyed++
	return nil
}

// fakeMigrator implements migrator. When blockUp is set, Up waits for Stop.
type fakeMigrator struct {
	upErr      error
	version    uint
	dirty      bool
	versionErr error
	closed     bool

	blockUp  bool
	stopOnce sync.Once
	stopped  chan struct{}
}

func (m *fakeMigrator) Up() error {
	if m.blockUp {
		<-m.stopped
	}
	return m.upErr
}

func (m *fakeMigrator) Stop() {
	m.stopOnce.Do(func() {
		if m.stopped != nil {
			close(m.stopped)
		}
	})
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, m.versionErr }

func (m *fakeMigrator) Close() (error, error) {
	m.closed = true
	return nil, nil
}

func newTestRepo(db *fakeDB) *Repository {
	return &Repository{db: db}
}
