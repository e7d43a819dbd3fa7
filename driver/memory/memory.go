// Package memory is a driver that keeps the schema as a schema.Snapshot in
// process memory. Transactions work on a copy that replaces the live state
// on commit. It backs dry runs, tests and embedders that only need the
// structural model.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/schema"
)

var (
	ErrTxDone             = errors.New("transaction has already been committed or rolled back")
	ErrConcurrentTxCommit = errors.New("another transaction committed first")
)

type Driver struct {
	mu         sync.Mutex
	schema     *schema.Snapshot
	log        []migration.Log
	generation uint64
}

func New() *Driver {
	return NewWithSchema(schema.NewSnapshot())
}

// NewWithSchema starts from a copy of s instead of an empty schema.
func NewWithSchema(s *schema.Snapshot) *Driver {
	return &Driver{schema: s.Clone()}
}

func (d *Driver) ListMigrationsLog(_ context.Context) ([]migration.Log, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]migration.Log{}, d.log...), nil
}

// Snapshot returns a copy of the committed schema.
func (d *Driver) Snapshot() *schema.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.schema.Clone()
}

func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return &tx{
		parent:     d,
		schema:     d.schema.Clone(),
		log:        append([]migration.Log{}, d.log...),
		generation: d.generation,
	}, nil
}

// ---

type tx struct {
	parent     *Driver
	schema     *schema.Snapshot
	log        []migration.Log
	generation uint64
	done       bool
}

func (t *tx) Execute(ctx context.Context, op schema.Operation) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.schema.Apply(op)
}

func (t *tx) ListMigrationsLog(_ context.Context) ([]migration.Log, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return append([]migration.Log{}, t.log...), nil
}

func (t *tx) AppendMigrationLog(_ context.Context, entry migration.Log) error {
	if t.done {
		return ErrTxDone
	}
	t.log = append(t.log, entry)
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	p := t.parent
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != t.generation {
		return ErrConcurrentTxCommit
	}

	p.schema = t.schema
	p.log = t.log
	p.generation++

	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}

var _ driver.Driver = (*Driver)(nil)
