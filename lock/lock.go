// Package lock provides mutual exclusion for migration runs, so that two
// executors never apply the same pending set concurrently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

var ErrLocked = errors.New("lock is held by another owner")

// Mode decides what Acquire does when the lock is taken.
type Mode string

const (
	// Wait blocks until the lock is released or the context is done.
	Wait Mode = "wait"

	// FailFast returns ErrLocked right away.
	FailFast Mode = "fail"
)

// Locker obtains a named lock. The returned release function must be called
// to give the lock back; calling it more than once is harmless.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ---

// Local is an in-process Locker. It serializes runs inside one process
// only; use it when the target itself allows a single writer (SQLite) or in
// tests.
type Local struct {
	mode Mode
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func NewLocal(mode Mode) *Local {
	return &Local{
		mode: mode,
		keys: make(map[string]chan struct{}),
	}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}

	l.mu.Lock()
	sem, ok := l.keys[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.keys[key] = sem
	}
	l.mu.Unlock()

	if l.mode == FailFast {
		select {
		case sem <- struct{}{}:
		default:
			return nil, fmt.Errorf("%w: %q", ErrLocked, key)
		}
	} else {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-sem })
	}, nil
}

// HashKey maps a lock name onto the int64 key space of database advisory
// locks (FNV-1a, sign bit cleared).
func HashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // intentional truncation
}

var _ Locker = (*Local)(nil)
