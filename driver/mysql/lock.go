package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/root-talis/henka/v2/lock"
)

// Locker takes MySQL named locks (GET_LOCK). A named lock belongs to a
// session, so every acquired lock pins one connection of the pool until it
// is released.
type Locker struct {
	db   *sql.DB
	mode lock.Mode
}

func NewLocker(db *sql.DB, mode lock.Mode) *Locker {
	return &Locker{db: db, mode: mode}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get a connection for the lock: %w", err)
	}

	name := lockName(key)

	// -1 waits forever; the wait ends early when ctx is done because the
	// driver kills the query.
	timeout := -1
	if l.mode == lock.FailFast {
		timeout = 0
	}

	var acquired sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, timeout).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", lock.ErrLocked, key)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", name)
			_ = conn.Close()
		})
	}

	return release, nil
}

// lockName fits any key into the 64 characters MySQL allows for lock names.
func lockName(key string) string {
	return fmt.Sprintf("henka_%016x", lock.HashKey(key))
}

var _ lock.Locker = (*Locker)(nil)
