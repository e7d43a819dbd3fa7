package driver

import (
	"context"
	"errors"

	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/schema"
)

// LogStore reads and appends rows of the migrations log.
type LogStore interface {
	// ListMigrationsLog returns the whole log, oldest row first.
	ListMigrationsLog(ctx context.Context) ([]migration.Log, error)
	AppendMigrationLog(ctx context.Context, entry migration.Log) error
}

// Tx is one atomic unit against the target: schema operations and log rows
// written through it become visible together on Commit, or not at all.
type Tx interface {
	LogStore
	Execute(ctx context.Context, op schema.Operation) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Driver interface {
	// ListMigrationsLog reads the log outside of any transaction.
	ListMigrationsLog(ctx context.Context) ([]migration.Log, error)
	Begin(ctx context.Context) (Tx, error)
}

// TransactionalDDL is implemented by drivers whose schema changes roll back
// with the transaction. Dry runs against them execute the plan for real in a
// transaction that is always rolled back.
type TransactionalDDL interface {
	TransactionalDDL() bool
}

var (
	ErrInvalidLogTable = errors.New("an error has occurred when reading log table")

	// ErrUnsupportedOperation is returned by Execute when the target can not
	// express an operation (for example adding a foreign key in SQLite).
	ErrUnsupportedOperation = errors.New("operation is not supported by this driver")
)
