package migration

import (
	"errors"

	"github.com/root-talis/henka/v2/schema"
)

var (
	ErrDuplicateID      = errors.New("migration version already exists")
	ErrInvalidRecord    = errors.New("invalid migration record")
	ErrAlreadyApplied   = errors.New("migration is already applied")
	ErrNotApplied       = errors.New("migration is not applied")
	ErrUnknownMigration = errors.New("unknown migration")
	ErrIrreversible     = errors.New("migration can not be reverted")

	// ErrHistoryDrift means the migrations log mentions a migration that the
	// registry does not know. It needs manual intervention.
	ErrHistoryDrift = errors.New("migrations log does not match registered migrations")

	// ErrSchemaConflict is schema.ErrConflict, re-exported so callers can
	// match every failure kind from one package.
	ErrSchemaConflict = schema.ErrConflict

	ErrMigrationInProgress = errors.New("another migration is in progress")

	// ErrAsymmetric means a record's Down steps do not restore the structure
	// its Up steps changed.
	ErrAsymmetric = errors.New("migration down steps do not undo its up steps")
)
