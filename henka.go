// Package henka applies and reverts registered migrations against a driver,
// one transaction per migration, and reports the state of every migration.
package henka

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/lock"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/plan"
	"github.com/root-talis/henka/v2/schema"
)

// DefaultLockKey is the lock key used unless WithLockKey is given.
const DefaultLockKey = "henka:migrations"

// ---

type Henka interface {
	Validate(ctx context.Context) (*ValidationResult, error)

	PlanUpgrade(ctx context.Context, target plan.Target) (*plan.Plan, error)
	PlanDowngrade(ctx context.Context, target plan.Target) (*plan.Plan, error)

	Upgrade(ctx context.Context, target plan.Target, opts ...RunOption) (*Result, error)
	Downgrade(ctx context.Context, target plan.Target, opts ...RunOption) (*Result, error)
}

type ValidationResult struct {
	Migrations    []migration.State
	AppliedCount  uint
	PendingCount  uint
	MissingCount  uint
	SkippedCount  uint
	ModifiedCount uint
}

// ---

type henkaImpl struct {
	registry   *migration.Registry
	driver     driver.Driver
	locker     lock.Locker
	lockKey    string
	log        logger.Logger
	now        func() time.Time
	baseSchema *schema.Snapshot
}

type Option func(*henkaImpl)

func WithLogger(log logger.Logger) Option {
	return func(h *henkaImpl) {
		h.log = log
	}
}

// WithLocker replaces the default in-process lock. Use a driver-native or
// Redis locker when several processes may migrate the same database.
func WithLocker(locker lock.Locker) Option {
	return func(h *henkaImpl) {
		h.locker = locker
	}
}

func WithLockKey(key string) Option {
	return func(h *henkaImpl) {
		h.lockKey = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *henkaImpl) {
		h.now = now
	}
}

// WithBaseSchema sets the structure that existed before the first
// migration. Simulated dry runs start from it instead of an empty schema;
// drivers with transactional DDL dry-run against the database itself.
func WithBaseSchema(s *schema.Snapshot) Option {
	return func(h *henkaImpl) {
		h.baseSchema = s.Clone()
	}
}

// ---

func New(registry *migration.Registry, driver driver.Driver, opts ...Option) Henka {
	h := &henkaImpl{
		registry:   registry,
		driver:     driver,
		locker:     lock.NewLocal(lock.Wait),
		lockKey:    DefaultLockKey,
		log:        logger.Noop,
		now:        time.Now,
		baseSchema: schema.NewSnapshot(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ---

func (m *henkaImpl) Validate(ctx context.Context) (*ValidationResult, error) {
	availableMigrations := m.registry.All()

	appliedMigrations, err := m.loadAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	var newestApplied migration.Version
	for version := range appliedMigrations {
		if version > newestApplied {
			newestApplied = version
		}
	}

	result := ValidationResult{
		Migrations: make([]migration.State, 0, len(availableMigrations)),
	}
	for _, available := range availableMigrations {
		state := migration.State{
			Description: available.Description(),
			Status:      migration.Pending,
		}

		entry, ok := appliedMigrations[available.Version]
		renamed := ok && entry.Name != available.Name

		switch {
		case renamed:
			// the logged migration is reported as missing below
			result.PendingCount++
		case ok:
			state.Status = migration.Applied
			state.AppliedAt = entry.AppliedAt
			state.Checksum = entry.Checksum
			state.Modified = entry.Checksum != "" && entry.Checksum != available.Checksum()
			result.AppliedCount++
		case available.Version < newestApplied:
			state.Status = migration.Skipped
			result.SkippedCount++
		default:
			result.PendingCount++
		}

		if state.Modified {
			result.ModifiedCount++
		}

		result.Migrations = append(result.Migrations, state)
	}

	for _, applied := range appliedMigrations {
		if rec, found := m.registry.Get(applied.Version); found && rec.Name == applied.Name {
			continue
		}

		result.Migrations = append(result.Migrations, migration.State{
			Description: migration.Description{
				Migration: applied.Migration,
				CanUndo:   false,
			},
			Status:    migration.Missing,
			AppliedAt: applied.AppliedAt,
			Checksum:  applied.Checksum,
		})
		result.MissingCount++
	}

	sort.Slice(result.Migrations, func(i, j int) bool {
		a, b := result.Migrations[i], result.Migrations[j]
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Name < b.Name
	})

	return &result, nil
}

func (m *henkaImpl) PlanUpgrade(ctx context.Context, target plan.Target) (*plan.Plan, error) {
	applied, err := m.loadAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	return plan.Up(m.registry.All(), appliedIDs(applied), target)
}

func (m *henkaImpl) PlanDowngrade(ctx context.Context, target plan.Target) (*plan.Plan, error) {
	applied, err := m.loadAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	return plan.Down(m.registry.All(), appliedIDs(applied), target)
}

func (m *henkaImpl) loadAppliedMigrations(ctx context.Context) (map[migration.Version]migration.Log, error) {
	log, err := m.driver.ListMigrationsLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from db: %w", err)
	}
	return migration.Replay(log), nil
}

func appliedIDs(applied map[migration.Version]migration.Log) []migration.Migration {
	sorted := migration.SortedApplied(applied)
	result := make([]migration.Migration, len(sorted))
	for i, entry := range sorted {
		result[i] = entry.Migration
	}
	return result
}
