package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/root-talis/henka/v2/lock"
)

// Locker takes session-level advisory locks. The lock lives as long as the
// session, so the pool connection that took it is held until release.
type Locker struct {
	pool *pgxpool.Pool
	mode lock.Mode
}

func NewLocker(pool *pgxpool.Pool, mode lock.Mode) *Locker {
	return &Locker{pool: pool, mode: mode}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get a connection for the lock: %w", err)
	}

	id := lock.HashKey(key)

	if l.mode == lock.FailFast {
		var acquired bool
		if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
			conn.Release()
			return nil, fmt.Errorf("failed to acquire advisory lock %d: %w", id, err)
		}
		if !acquired {
			conn.Release()
			return nil, fmt.Errorf("%w: %s", lock.ErrLocked, key)
		}
	} else if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		conn.Release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to acquire advisory lock %d: %w", id, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", id)
			conn.Release()
		})
	}

	return release, nil
}

var _ lock.Locker = (*Locker)(nil)
