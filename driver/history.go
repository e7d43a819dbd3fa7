package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/root-talis/henka/v2/migration"
)

// History is the ledger of applied migrations kept in a LogStore. When the
// store is a Tx, every change made through History commits or rolls back
// together with the schema changes of that Tx.
type History struct {
	store LogStore
}

func NewHistory(store LogStore) *History {
	return &History{store: store}
}

// Applied returns the currently applied migrations keyed by version.
func (h *History) Applied(ctx context.Context) (map[migration.Version]migration.Log, error) {
	log, err := h.store.ListMigrationsLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations log: %w", err)
	}
	return migration.Replay(log), nil
}

// AppliedIDs returns the currently applied migrations ordered by version.
func (h *History) AppliedIDs(ctx context.Context) ([]migration.Migration, error) {
	applied, err := h.Applied(ctx)
	if err != nil {
		return nil, err
	}

	sorted := migration.SortedApplied(applied)
	result := make([]migration.Migration, len(sorted))
	for i, entry := range sorted {
		result[i] = entry.Migration
	}
	return result, nil
}

// RecordApplied marks mig as applied. It fails with ErrAlreadyApplied when
// mig is applied already, which means the plan was computed from a stale view
// of the log.
func (h *History) RecordApplied(ctx context.Context, mig migration.Migration, checksum string, at time.Time) error {
	applied, err := h.Applied(ctx)
	if err != nil {
		return err
	}
	if _, ok := applied[mig.Version]; ok {
		return fmt.Errorf("%w: %s", migration.ErrAlreadyApplied, mig.ID())
	}

	return h.append(ctx, migration.Log{
		Migration: mig,
		Direction: migration.Up,
		AppliedAt: at,
		Checksum:  checksum,
	})
}

// RecordReverted marks mig as no longer applied.
func (h *History) RecordReverted(ctx context.Context, mig migration.Migration, at time.Time) error {
	applied, err := h.Applied(ctx)
	if err != nil {
		return err
	}
	entry, ok := applied[mig.Version]
	if !ok {
		return fmt.Errorf("%w: %s", migration.ErrNotApplied, mig.ID())
	}

	return h.append(ctx, migration.Log{
		Migration: mig,
		Direction: migration.Down,
		AppliedAt: at,
		Checksum:  entry.Checksum,
	})
}

func (h *History) append(ctx context.Context, entry migration.Log) error {
	if err := h.store.AppendMigrationLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s of %s: %w", entry.Direction, entry.ID(), err)
	}
	return nil
}
