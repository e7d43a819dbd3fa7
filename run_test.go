//nolint:gochecknoglobals
package henka_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/memory"
	"github.com/root-talis/henka/v2/driver/sqlite"
	"github.com/root-talis/henka/v2/lock"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/plan"
	"github.com/root-talis/henka/v2/schema"
)

// -- fixtures ---------------------------

var (
	usersTable = schema.CreateTable{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", Type: "INTEGER"}},
		PrimaryKey: []string{"id"},
	}

	addEmail = migration.Record{
		Migration: migration.Migration{Version: 20240101000000, Name: "add_email"},
		Up: []schema.Operation{
			schema.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: "TEXT", Nullable: true}},
		},
		Down: []schema.Operation{
			schema.DropColumn{Table: "users", Name: "email"},
		},
	}

	postsTable = schema.CreateTable{
		Name: "posts",
		Columns: []schema.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "author_id", Type: "INTEGER"},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.ForeignKey{{
			Name:       "posts_author_fk",
			Columns:    []string{"author_id"},
			RefTable:   "users",
			RefColumns: []string{"id"},
			OnDelete:   schema.Cascade,
		}},
	}

	createPosts = migration.Record{
		Migration: migration.Migration{Version: 20240102000000, Name: "create_posts"},
		Up:        []schema.Operation{postsTable},
		Down:      []schema.Operation{schema.DropTable{Name: "posts"}},
	}

	// same migration, but its second step adds a column addEmail has added
	// already
	createPostsBroken = migration.Record{
		Migration: createPosts.Migration,
		Up: []schema.Operation{
			postsTable,
			schema.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: "TEXT", Nullable: true}},
		},
		Down: createPosts.Down,
	}

	addNickname = migration.Record{
		Migration: migration.Migration{Version: 20240103000000, Name: "add_nickname"},
		Up: []schema.Operation{
			schema.AddColumn{Table: "users", Column: schema.Column{Name: "nickname", Type: "TEXT", Nullable: true}},
		},
		Down: []schema.Operation{
			schema.DropColumn{Table: "users", Name: "nickname"},
		},
	}

	errRollback = errors.New("rollback failed")
	errCommit   = errors.New("commit failed")
)

func baseSchema(t *testing.T) *schema.Snapshot {
	t.Helper()

	s := schema.NewSnapshot()
	require.NoError(t, s.Apply(usersTable))

	return s
}

func newRegistry(t *testing.T, recs ...migration.Record) *migration.Registry {
	t.Helper()

	registry, err := migration.NewRegistry(recs...)
	require.NoError(t, err)

	return registry
}

func appliedIDs(t *testing.T, drv driver.Driver) []migration.Migration {
	t.Helper()

	log, err := drv.ListMigrationsLog(context.Background())
	require.NoError(t, err)

	sorted := migration.SortedApplied(migration.Replay(log))
	result := make([]migration.Migration, 0, len(sorted))
	for _, entry := range sorted {
		result = append(result, entry.Migration)
	}

	return result
}

// -- testing doubles for transactions ---

type txHooks struct {
	rollbackErr error
	commitErr   error
	afterCommit func()

	rolledBack bool
}

type hookedDriver struct {
	driver.Driver
	hooks *txHooks
}

func (d *hookedDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := d.Driver.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &hookedTx{Tx: tx, hooks: d.hooks}, nil
}

type hookedTx struct {
	driver.Tx
	hooks *txHooks
}

func (t *hookedTx) Commit(ctx context.Context) error {
	if t.hooks.commitErr != nil {
		return t.hooks.commitErr
	}
	if err := t.Tx.Commit(ctx); err != nil {
		return err
	}
	if t.hooks.afterCommit != nil {
		t.hooks.afterCommit()
	}
	return nil
}

func (t *hookedTx) Rollback(ctx context.Context) error {
	t.hooks.rolledBack = true
	if err := t.Tx.Rollback(ctx); err != nil {
		return err
	}
	return t.hooks.rollbackErr
}

//
// -- Tests for Henka.Upgrade() and Henka.Downgrade() ---
//

func TestUpgradeAppliesPendingMigrationsInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	migrator := henka.New(newRegistry(t, createPosts, addEmail), drv)

	result, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	expected := []migration.Migration{addEmail.Migration, createPosts.Migration}
	assert.Equal(t, expected, result.Migrations)
	assert.Equal(t, expected, appliedIDs(t, drv))

	current := drv.Snapshot()
	_, hasEmail := current.Column("users", "email")
	assert.True(t, hasEmail)
	assert.True(t, current.HasTable("posts"))

	// nothing left to do
	result, err = migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)
	assert.Empty(t, result.Migrations)
}

func TestUpgradeStoresChecksums(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	_, err := henka.New(newRegistry(t, addEmail), drv).Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	log, err := drv.ListMigrationsLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, addEmail.Checksum(), log[0].Checksum)

	changed := addEmail
	changed.Up = []schema.Operation{
		schema.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: "VARCHAR(255)", Nullable: true}},
	}

	state, err := henka.New(newRegistry(t, changed), drv).Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.ModifiedCount)
	assert.True(t, state.Migrations[0].Modified)
}

func TestUpgradeToTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	migrator := henka.New(newRegistry(t, addEmail, createPosts, addNickname), drv)

	_, err := migrator.Upgrade(ctx, plan.To(createPosts.Version))
	require.NoError(t, err)
	assert.Equal(t, []migration.Migration{addEmail.Migration, createPosts.Migration}, appliedIDs(t, drv))

	_, err = migrator.Upgrade(ctx, plan.To(20990101000000))
	assert.ErrorIs(t, err, migration.ErrUnknownMigration)
}

func TestDowngradeToTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv)

	_, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	result, err := migrator.Downgrade(ctx, plan.To(addEmail.Version))
	require.NoError(t, err)

	assert.Equal(t, []migration.Migration{createPosts.Migration}, result.Migrations)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
	assert.False(t, drv.Snapshot().HasTable("posts"))
}

func TestFullUpgradeThenFullDowngradeRestoresEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := baseSchema(t)
	drv := memory.NewWithSchema(base)
	migrator := henka.New(newRegistry(t, addEmail, createPosts, addNickname), drv)

	_, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	result, err := migrator.Downgrade(ctx, plan.Latest())
	require.NoError(t, err)

	assert.Equal(t,
		[]migration.Migration{addNickname.Migration, createPosts.Migration, addEmail.Migration},
		result.Migrations,
	)
	assert.Empty(t, appliedIDs(t, drv))
	assert.True(t, drv.Snapshot().Equal(base))
}

func TestDowngradeSteps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	migrator := henka.New(newRegistry(t, addEmail, createPosts, addNickname), drv)

	_, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	result, err := migrator.Downgrade(ctx, plan.Last(2))
	require.NoError(t, err)

	assert.Equal(t, []migration.Migration{addNickname.Migration, createPosts.Migration}, result.Migrations)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
}

func TestFailedStepRollsBackTheWholeMigration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := baseSchema(t)
	drv := memory.NewWithSchema(base)
	migrator := henka.New(newRegistry(t, addEmail, createPostsBroken), drv)

	result, err := migrator.Upgrade(ctx, plan.Latest())

	var execErr *henka.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, createPostsBroken.Migration, execErr.Migration)
	assert.Equal(t, migration.Up, execErr.Direction)
	assert.Equal(t, 2, execErr.Step)
	assert.ErrorIs(t, err, migration.ErrSchemaConflict)
	assert.Contains(t, err.Error(), createPostsBroken.ID())

	assert.Equal(t, []migration.Migration{addEmail.Migration}, result.Migrations)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
	assert.False(t, drv.Snapshot().HasTable("posts"))
}

func TestRollbackFailureIsReportedWithTheCause(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hooks := &txHooks{rollbackErr: errRollback}
	drv := &hookedDriver{Driver: memory.NewWithSchema(baseSchema(t)), hooks: hooks}
	migrator := henka.New(newRegistry(t, addEmail, createPostsBroken), drv)

	_, err := migrator.Upgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, migration.ErrSchemaConflict)
	assert.ErrorIs(t, err, errRollback)
	assert.True(t, hooks.rolledBack)
}

func TestFailedCommitIsNotRolledBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hooks := &txHooks{commitErr: errCommit}
	drv := &hookedDriver{Driver: memory.NewWithSchema(baseSchema(t)), hooks: hooks}
	migrator := henka.New(newRegistry(t, addEmail), drv)

	_, err := migrator.Upgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, errCommit)
	assert.False(t, hooks.rolledBack)
	assert.Empty(t, appliedIDs(t, drv))
}

func TestHistoryDriftStopsBeforeAnyChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	_, err := henka.New(newRegistry(t, addEmail), drv).Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	before := drv.Snapshot()

	// addEmail is applied but no longer registered
	migrator := henka.New(newRegistry(t, createPosts), drv)

	_, err = migrator.Upgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, migration.ErrHistoryDrift)

	_, err = migrator.Downgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, migration.ErrHistoryDrift)

	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
	assert.True(t, drv.Snapshot().Equal(before))
}

func TestIrreversibleMigrationIsNotReverted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	oneWay := addEmail
	oneWay.Down = nil

	drv := memory.NewWithSchema(baseSchema(t))
	migrator := henka.New(newRegistry(t, oneWay, createPosts), drv)

	_, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	_, err = migrator.Downgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, migration.ErrIrreversible)
	assert.Len(t, appliedIDs(t, drv), 2)
}

func TestRunFailsFastWhenLocked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	locker := lock.NewLocal(lock.FailFast)
	release, err := locker.Acquire(ctx, "custom-key")
	require.NoError(t, err)
	defer release()

	drv := memory.NewWithSchema(baseSchema(t))
	migrator := henka.New(newRegistry(t, addEmail), drv,
		henka.WithLocker(locker),
		henka.WithLockKey("custom-key"),
	)

	_, err = migrator.Upgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, migration.ErrMigrationInProgress)
	assert.ErrorIs(t, err, lock.ErrLocked)
	assert.Empty(t, appliedIDs(t, drv))

	release()

	_, err = migrator.Upgrade(ctx, plan.Latest())
	assert.NoError(t, err)
}

func TestCancellationIsObservedBetweenMigrations(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hooks := &txHooks{afterCommit: cancel}
	drv := &hookedDriver{Driver: memory.NewWithSchema(baseSchema(t)), hooks: hooks}
	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv)

	result, err := migrator.Upgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, result.Migrations)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
}

//
// -- Tests for dry runs --------------------
//

func TestDryRunDoesNotTouchTheDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := baseSchema(t)
	drv := memory.NewWithSchema(base)
	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv, henka.WithBaseSchema(base))

	result, err := migrator.Upgrade(ctx, plan.Latest(), henka.DryRun())
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, []migration.Migration{addEmail.Migration, createPosts.Migration}, result.Migrations)
	assert.True(t, result.Schema.HasTable("posts"))

	assert.Empty(t, appliedIDs(t, drv))
	assert.True(t, drv.Snapshot().Equal(base))
}

func TestDryRunDowngradeStartsFromAppliedHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := baseSchema(t)
	drv := memory.NewWithSchema(base)
	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv, henka.WithBaseSchema(base))

	_, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	result, err := migrator.Downgrade(ctx, plan.Last(1), henka.DryRun())
	require.NoError(t, err)

	assert.Equal(t, []migration.Migration{createPosts.Migration}, result.Migrations)
	assert.False(t, result.Schema.HasTable("posts"))
	assert.True(t, drv.Snapshot().HasTable("posts"))
	assert.Len(t, appliedIDs(t, drv), 2)
}

func TestDryRunReportsConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := baseSchema(t)
	migrator := henka.New(newRegistry(t, addEmail, createPostsBroken), memory.NewWithSchema(base),
		henka.WithBaseSchema(base),
	)

	result, err := migrator.Upgrade(ctx, plan.Latest(), henka.DryRun())

	var execErr *henka.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.Step)
	assert.ErrorIs(t, err, migration.ErrSchemaConflict)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, result.Migrations)
}

func TestDryRunReportsAsymmetricMigrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	leaky := migration.Record{
		Migration: migration.Migration{Version: 20240104000000, Name: "add_profile"},
		Up: []schema.Operation{
			schema.AddColumn{Table: "users", Column: schema.Column{Name: "bio", Type: "TEXT", Nullable: true}},
			schema.CreateIndex{Name: "users_bio_idx", Table: "users", Columns: []string{"bio"}},
		},
		Down: []schema.Operation{
			schema.DropIndex{Name: "users_bio_idx", Table: "users"},
		},
	}

	base := baseSchema(t)
	migrator := henka.New(newRegistry(t, leaky), memory.NewWithSchema(base), henka.WithBaseSchema(base))

	_, err := migrator.Upgrade(ctx, plan.Latest(), henka.DryRun())
	assert.ErrorIs(t, err, migration.ErrAsymmetric)
}

func TestPlanningSkipsOlderUnappliedMigrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv := memory.NewWithSchema(baseSchema(t))
	_, err := henka.New(newRegistry(t, createPosts), drv).Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv)

	p, err := migrator.PlanUpgrade(ctx, plan.Latest())
	require.NoError(t, err)
	assert.True(t, p.Empty())

	state, err := migrator.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.SkippedCount)
	assert.Equal(t, migration.Skipped, state.Migrations[0].Status)
}

//
// -- Scenario on a real transactional database ---
//

// openSQLite returns a driver over a fresh database that already has a users
// table created outside of migrations.
func openSQLite(t *testing.T) (*sql.DB, driver.Driver) {
	t.Helper()

	conn, err := sqlite.Open(filepath.Join(t.TempDir(), "henka.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	_, err = conn.Exec("CREATE TABLE users (id INTEGER NOT NULL, PRIMARY KEY (id))")
	require.NoError(t, err)

	return conn, sqlite.NewDriver(conn, sqlite.DriverConfig{MigrationsTableName: "migrations_log"})
}

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := conn.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).
		Scan(&count)
	require.NoError(t, err)

	return count == 1
}

func columnExists(t *testing.T, conn *sql.DB, table, column string) bool {
	t.Helper()

	var count int
	err := conn.QueryRow("SELECT count(*) FROM pragma_table_info(?) WHERE name = ?", table, column).
		Scan(&count)
	require.NoError(t, err)

	return count == 1
}

func TestScenarioOnSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	conn, drv := openSQLite(t)

	// the second step of create_posts fails: posts must not survive
	_, err := henka.New(newRegistry(t, addEmail, createPostsBroken), drv).Upgrade(ctx, plan.Latest())
	assert.ErrorIs(t, err, migration.ErrSchemaConflict)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
	assert.False(t, tableExists(t, conn, "posts"))

	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv)

	_, err = migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)
	assert.Equal(t, []migration.Migration{addEmail.Migration, createPosts.Migration}, appliedIDs(t, drv))
	assert.True(t, tableExists(t, conn, "posts"))

	_, err = migrator.Downgrade(ctx, plan.To(addEmail.Version))
	require.NoError(t, err)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, appliedIDs(t, drv))
	assert.False(t, tableExists(t, conn, "posts"))

	_, err = migrator.Downgrade(ctx, plan.Latest())
	require.NoError(t, err)
	assert.Empty(t, appliedIDs(t, drv))
}

func TestDryRunOnSQLiteUsesTheLiveSchema(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// users exists in the database but no migration created it
	conn, drv := openSQLite(t)
	migrator := henka.New(newRegistry(t, addEmail, createPosts), drv)

	result, err := migrator.Upgrade(ctx, plan.Latest(), henka.DryRun())
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Nil(t, result.Schema)
	assert.Equal(t, []migration.Migration{addEmail.Migration, createPosts.Migration}, result.Migrations)

	assert.Empty(t, appliedIDs(t, drv))
	assert.False(t, columnExists(t, conn, "users", "email"))
	assert.False(t, tableExists(t, conn, "posts"))

	// the real run agrees with the dry run
	_, err = migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	result, err = migrator.Downgrade(ctx, plan.Latest(), henka.DryRun())
	require.NoError(t, err)
	assert.Equal(t, []migration.Migration{createPosts.Migration, addEmail.Migration}, result.Migrations)
	assert.True(t, tableExists(t, conn, "posts"))
	assert.Len(t, appliedIDs(t, drv), 2)
}

func TestDryRunOnSQLiteReportsConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	conn, drv := openSQLite(t)
	migrator := henka.New(newRegistry(t, addEmail, createPostsBroken), drv)

	result, err := migrator.Upgrade(ctx, plan.Latest(), henka.DryRun())

	var execErr *henka.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, createPosts.Migration, execErr.Migration)
	assert.Equal(t, 2, execErr.Step)
	assert.ErrorIs(t, err, migration.ErrSchemaConflict)
	assert.Equal(t, []migration.Migration{addEmail.Migration}, result.Migrations)

	assert.False(t, columnExists(t, conn, "users", "email"))
	assert.False(t, tableExists(t, conn, "posts"))
}

func TestDryRunOnSQLiteReportsAsymmetricMigrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	leaky := migration.Record{
		Migration: migration.Migration{Version: 20240104000000, Name: "add_bio"},
		Up: []schema.Operation{
			schema.AddColumn{Table: "users", Column: schema.Column{Name: "bio", Type: "TEXT", Nullable: true}},
			schema.CreateIndex{Name: "users_bio_idx", Table: "users", Columns: []string{"bio"}},
		},
		Down: []schema.Operation{
			schema.DropIndex{Name: "users_bio_idx", Table: "users"},
		},
	}

	conn, drv := openSQLite(t)

	_, err := henka.New(newRegistry(t, leaky), drv).Upgrade(ctx, plan.Latest(), henka.DryRun())
	assert.ErrorIs(t, err, migration.ErrAsymmetric)
	assert.False(t, columnExists(t, conn, "users", "bio"))
}

func TestAppliedAtComesFromTheClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	at := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return at }

	_, drv := openSQLite(t)
	migrator := henka.New(newRegistry(t, addEmail), drv, henka.WithClock(clock))

	_, err := migrator.Upgrade(ctx, plan.Latest())
	require.NoError(t, err)

	state, err := migrator.Validate(ctx)
	require.NoError(t, err)
	require.Len(t, state.Migrations, 1)
	assert.True(t, at.Equal(state.Migrations[0].AppliedAt), "got %s", state.Migrations[0].AppliedAt)
}
