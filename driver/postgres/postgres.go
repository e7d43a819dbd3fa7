// Package postgres runs migrations against PostgreSQL through pgx. DDL is
// transactional in PostgreSQL, so every migration is applied completely or
// not at all.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/ddl"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/schema"
)

type DriverConfig struct {
	// SchemaName qualifies the migrations log table. Empty means the
	// connection's search_path decides.
	SchemaName          string
	MigrationsTableName string
}

const createMigrationsTable = "CREATE TABLE IF NOT EXISTS %s (" +
	"id             bigserial primary key, " +
	"version        bigint, " +
	"migration_name varchar(100) null, " +
	"direction      char(1) null, " + // "u" or "d"
	"start_time     timestamptz default now() not null, " +
	"end_time       timestamptz null, " +
	"checksum       varchar(64) null" +
	")"

const addChecksumColumn = "ALTER TABLE %s ADD COLUMN IF NOT EXISTS checksum varchar(64) null"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar) //nolint:gochecknoglobals

// Connect opens a connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

type Driver struct {
	pool  *pgxpool.Pool
	table string
}

func NewDriver(pool *pgxpool.Pool, config DriverConfig) *Driver {
	table := ddl.Postgres.Quote(config.MigrationsTableName)
	if config.SchemaName != "" {
		table = ddl.Postgres.Quote(config.SchemaName) + "." + table
	}

	return &Driver{pool: pool, table: table}
}

func (drv *Driver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	if err := drv.ensureMigrationsTableExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}

	return listMigrationsLog(ctx, drv.pool, drv.table)
}

func (drv *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	if err := drv.ensureMigrationsTableExists(ctx); err != nil {
		return nil, err
	}

	pgTx, err := drv.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &tx{tx: pgTx, table: drv.table}, nil
}

func (drv *Driver) ensureMigrationsTableExists(ctx context.Context) error {
	if _, err := drv.pool.Exec(ctx, fmt.Sprintf(createMigrationsTable, drv.table)); err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", drv.table, err)
	}
	if _, err := drv.pool.Exec(ctx, fmt.Sprintf(addChecksumColumn, drv.table)); err != nil {
		return fmt.Errorf("failed to add checksum column to %s: %w", drv.table, err)
	}
	return nil
}

// TransactionalDDL reports that schema changes roll back with the
// transaction.
func (drv *Driver) TransactionalDDL() bool {
	return true
}

// ---

type tx struct {
	tx    pgx.Tx
	table string
}

func (t *tx) Execute(ctx context.Context, op schema.Operation) error {
	stmt, err := ddl.Postgres.Render(op)
	if err != nil {
		return err
	}

	if _, err := t.tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, classify(err))
	}

	return nil
}

func (t *tx) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	return listMigrationsLog(ctx, t.tx, t.table)
}

func (t *tx) AppendMigrationLog(ctx context.Context, entry migration.Log) error {
	query, args, err := psql.Insert(t.table).
		Columns("version", "migration_name", "direction", "start_time", "end_time", "checksum").
		Values(
			int64(entry.Version),
			entry.Name,
			string(entry.Direction),
			entry.AppliedAt.UTC(),
			squirrel.Expr("now()"),
			entry.Checksum,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build migrations log insert: %w", err)
	}

	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into migrations log: %w", err)
	}

	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// ---

type logRow struct {
	Version   int64     `db:"version"`
	Name      *string   `db:"migration_name"`
	Direction *string   `db:"direction"`
	StartTime time.Time `db:"start_time"`
	Checksum  *string   `db:"checksum"`
}

func listMigrationsLog(ctx context.Context, q pgxscan.Querier, table string) ([]migration.Log, error) {
	query, args, err := psql.Select("version", "migration_name", "direction", "start_time", "checksum").
		From(table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build migrations log query: %w", err)
	}

	var rows []logRow
	if err := pgxscan.Select(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query migrations log table: %w", err)
	}

	result := make([]migration.Log, 0, len(rows))
	for _, row := range rows {
		entry := migration.Log{
			Migration: migration.Migration{
				Version: migration.Version(row.Version),
				Name:    deref(row.Name),
			},
			AppliedAt: row.StartTime.UTC(),
			Checksum:  deref(row.Checksum),
		}

		switch direction := deref(row.Direction); strings.ToLower(direction) {
		case "u":
			entry.Direction = migration.Up
		case "d":
			entry.Direction = migration.Down
		default:
			return nil, fmt.Errorf("%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, direction)
		}

		result = append(result, entry)
	}

	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SQLSTATE codes that mean the operation does not fit the current structure.
const (
	duplicateColumn            = "42701"
	duplicateTable             = "42P07"
	undefinedTable             = "42P01"
	undefinedColumn            = "42703"
	duplicateObject            = "42710"
	undefinedObject            = "42704"
	dependentObjectsStillExist = "2BP01"
)

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case duplicateColumn, duplicateTable, undefinedTable, undefinedColumn,
		duplicateObject, undefinedObject, dependentObjectsStillExist:
		return fmt.Errorf("%w: %s", schema.ErrConflict, pgErr.Message)
	default:
		return err
	}
}

var (
	_ driver.Driver           = (*Driver)(nil)
	_ driver.TransactionalDDL = (*Driver)(nil)
)
