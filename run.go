package henka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/lock"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/plan"
	"github.com/root-talis/henka/v2/schema"
)

type RunOption func(*runOptions)

type runOptions struct {
	dryRun bool
}

// DryRun checks the plan without changing anything. Drivers with
// transactional DDL execute it in a transaction that is always rolled back;
// for the others the plan is simulated on the structural model. No lock is
// taken.
func DryRun() RunOption {
	return func(o *runOptions) {
		o.dryRun = true
	}
}

// Result describes a finished run.
type Result struct {
	Direction migration.Direction
	DryRun    bool

	// Migrations are the migrations applied or reverted, in execution
	// order. On failure they are the ones committed before the failing one.
	Migrations []migration.Migration

	// Schema is the structure after a simulated dry run. It is nil for real
	// runs and for dry runs executed against the database.
	Schema *schema.Snapshot
}

func (m *henkaImpl) Upgrade(ctx context.Context, target plan.Target, opts ...RunOption) (*Result, error) {
	return m.run(ctx, migration.Up, target, opts)
}

func (m *henkaImpl) Downgrade(ctx context.Context, target plan.Target, opts ...RunOption) (*Result, error) {
	return m.run(ctx, migration.Down, target, opts)
}

func (m *henkaImpl) run(
	ctx context.Context,
	direction migration.Direction,
	target plan.Target,
	opts []RunOption,
) (*Result, error) {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}

	ctx = logger.Inject(ctx, logger.KV("direction", direction.String()), logger.KV("dryRun", options.dryRun))

	if !options.dryRun {
		release, err := m.acquireLock(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	applied, err := m.loadAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var p *plan.Plan
	if direction == migration.Up {
		p, err = plan.Up(m.registry.All(), appliedIDs(applied), target)
	} else {
		p, err = plan.Down(m.registry.All(), appliedIDs(applied), target)
	}
	if err != nil {
		return nil, err
	}

	m.log.Info(ctx, "migration plan is ready", logger.KV("migrations", len(p.Records)))

	if options.dryRun {
		if t, ok := m.driver.(driver.TransactionalDDL); ok && t.TransactionalDDL() {
			return m.rehearse(ctx, p)
		}
		return m.simulate(ctx, p, applied)
	}

	result := &Result{Direction: direction}
	for _, rec := range p.Records {
		if err := ctx.Err(); err != nil {
			m.log.Warn(ctx, "migration run interrupted", logger.KV("next", rec.ID()))
			return result, fmt.Errorf("migration run interrupted before %s: %w", rec.ID(), err)
		}

		if err := m.execute(ctx, direction, rec); err != nil {
			m.log.Error(ctx, "migration failed", logger.KV("migration", rec.ID()), logger.KV("error", err))
			return result, err
		}

		result.Migrations = append(result.Migrations, rec.Migration)
	}

	return result, nil
}

func (m *henkaImpl) acquireLock(ctx context.Context) (func(), error) {
	m.log.Debug(ctx, "acquiring migration lock", logger.KV("key", m.lockKey))

	release, err := m.locker.Acquire(ctx, m.lockKey)
	if errors.Is(err, lock.ErrLocked) {
		return nil, fmt.Errorf("%w: %w", migration.ErrMigrationInProgress, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	return release, nil
}

// execute runs one record in its own transaction.
func (m *henkaImpl) execute(ctx context.Context, direction migration.Direction, rec migration.Record) error {
	started := m.now()
	clock := time.Now()

	tx, err := m.driver.Begin(ctx)
	if err != nil {
		return &ExecutionError{Migration: rec.Migration, Direction: direction, Err: err}
	}

	if execErr := runSteps(ctx, tx, direction, rec); execErr != nil {
		return rollback(ctx, tx, execErr)
	}

	if err := recordHistory(ctx, driver.NewHistory(tx), direction, rec, started); err != nil {
		return rollback(ctx, tx, &ExecutionError{Migration: rec.Migration, Direction: direction, Err: err})
	}

	// a failed commit leaves nothing to roll back
	if err := tx.Commit(ctx); err != nil {
		return &ExecutionError{
			Migration: rec.Migration,
			Direction: direction,
			Err:       fmt.Errorf("failed to commit: %w", err),
		}
	}

	m.log.Info(ctx, "migration is done",
		logger.KV("migration", rec.ID()),
		logger.KV("elapsed", time.Since(clock).String()),
	)

	return nil
}

func runSteps(ctx context.Context, tx driver.Tx, direction migration.Direction, rec migration.Record) *ExecutionError {
	for i, op := range rec.Steps(direction) {
		if err := tx.Execute(ctx, op); err != nil {
			return &ExecutionError{
				Migration: rec.Migration,
				Direction: direction,
				Step:      i + 1,
				Err:       err,
			}
		}
	}
	return nil
}

func recordHistory(
	ctx context.Context,
	history *driver.History,
	direction migration.Direction,
	rec migration.Record,
	at time.Time,
) error {
	if direction == migration.Up {
		return history.RecordApplied(ctx, rec.Migration, rec.Checksum(), at)
	}
	return history.RecordReverted(ctx, rec.Migration, at)
}

func rollback(ctx context.Context, tx driver.Tx, execErr *ExecutionError) error {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		execErr.Err = multierr.Append(execErr.Err, fmt.Errorf("failed to roll back: %w", err))
	}
	return execErr
}

// rehearse executes the whole plan in one transaction against the live
// schema and rolls it back. Forward records with Down steps also run Down
// and then Up again, so their Down steps are checked against the database.
func (m *henkaImpl) rehearse(ctx context.Context, p *plan.Plan) (*Result, error) {
	tx, err := m.driver.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dry run: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn(ctx, "failed to roll back dry run", logger.KV("error", err))
		}
	}()

	history := driver.NewHistory(tx)
	result := &Result{Direction: p.Direction, DryRun: true}

	for _, rec := range p.Records {
		if execErr := runSteps(ctx, tx, p.Direction, rec); execErr != nil {
			return result, execErr
		}

		if p.Direction == migration.Up && rec.CanUndo() {
			if execErr := runSteps(ctx, tx, migration.Down, rec); execErr != nil {
				return result, execErr
			}
			if execErr := runSteps(ctx, tx, migration.Up, rec); execErr != nil {
				execErr.Err = fmt.Errorf("%w: %w", migration.ErrAsymmetric, execErr.Err)
				return result, execErr
			}
		}

		if err := recordHistory(ctx, history, p.Direction, rec, m.now()); err != nil {
			return result, &ExecutionError{Migration: rec.Migration, Direction: p.Direction, Err: err}
		}

		m.log.Info(ctx, "migration would be done", logger.KV("migration", rec.ID()))
		result.Migrations = append(result.Migrations, rec.Migration)
	}

	return result, nil
}

// simulate rebuilds the structure produced by the applied migrations and
// runs the plan against it. Forward plans also check that every record's
// Down steps undo its Up steps.
func (m *henkaImpl) simulate(
	ctx context.Context,
	p *plan.Plan,
	applied map[migration.Version]migration.Log,
) (*Result, error) {
	current := m.baseSchema.Clone()

	for _, entry := range migration.SortedApplied(applied) {
		rec, ok := m.registry.Get(entry.Version)
		if !ok {
			return nil, fmt.Errorf("%w: %s is applied but not registered", migration.ErrHistoryDrift, entry.ID())
		}
		if err := current.ApplyAll(rec.Up); err != nil {
			return nil, fmt.Errorf("failed to rebuild schema at %s: %w", rec.ID(), err)
		}
	}

	result := &Result{Direction: p.Direction, DryRun: true}
	for _, rec := range p.Records {
		before := current.Clone()

		for i, op := range rec.Steps(p.Direction) {
			if err := current.Apply(op); err != nil {
				return result, &ExecutionError{
					Migration: rec.Migration,
					Direction: p.Direction,
					Step:      i + 1,
					Err:       err,
				}
			}
		}

		if p.Direction == migration.Up && rec.CanUndo() {
			if err := rec.CheckSymmetry(before); err != nil {
				return result, &ExecutionError{Migration: rec.Migration, Direction: p.Direction, Err: err}
			}
		}

		m.log.Info(ctx, "migration would be done", logger.KV("migration", rec.ID()))
		result.Migrations = append(result.Migrations, rec.Migration)
	}

	result.Schema = current
	return result, nil
}
