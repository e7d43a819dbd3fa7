// Package sqldb implements driver.Driver for database/sql targets. Dialect
// specifics (DDL, log table definition, error codes) come from Config, which
// the mysql and sqlite drivers fill in.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/ddl"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/schema"
)

// TimeLayout is how start_time values are written.
const TimeLayout = "2006-01-02 15:04:05"

type Config struct {
	Dialect ddl.Dialect

	// Table is the quoted, possibly qualified name of the log table.
	Table string

	// CreateTable creates the log table if it does not exist. It receives
	// Table as its only argument.
	CreateTable string

	// AddChecksumColumn adds the checksum column to a log table created
	// before checksums were stored. It receives Table as its only argument.
	AddChecksumColumn string

	// TransactionalDDL is true when schema changes roll back with the
	// transaction.
	TransactionalDDL bool

	Placeholder squirrel.PlaceholderFormat

	// Classify maps a driver error to a henka error (schema.ErrConflict for
	// structure mismatches) or returns it unchanged.
	Classify func(err error) error
}

type Driver struct {
	db  *sqlx.DB
	cfg Config
}

func New(db *sqlx.DB, cfg Config) *Driver {
	if cfg.Placeholder == nil {
		cfg.Placeholder = squirrel.Question
	}
	if cfg.Classify == nil {
		cfg.Classify = func(err error) error { return err }
	}

	return &Driver{db: db, cfg: cfg}
}

func (drv *Driver) TransactionalDDL() bool {
	return drv.cfg.TransactionalDDL
}

func (drv *Driver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	if err := drv.ensureMigrationsTableExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}

	return listMigrationsLog(ctx, drv.db, drv.cfg)
}

func (drv *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	if err := drv.ensureMigrationsTableExists(ctx); err != nil {
		return nil, err
	}

	sqlTx, err := drv.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &tx{tx: sqlTx, cfg: drv.cfg}, nil
}

func (drv *Driver) ensureMigrationsTableExists(ctx context.Context) error {
	_, err := drv.db.ExecContext(ctx, fmt.Sprintf(drv.cfg.CreateTable, drv.cfg.Table))
	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", drv.cfg.Table, err)
	}

	return drv.ensureChecksumColumn(ctx)
}

// ensureChecksumColumn upgrades log tables that have no checksum column.
// Their rows read as having an empty checksum.
func (drv *Driver) ensureChecksumColumn(ctx context.Context) error {
	query, args, err := squirrel.Select("checksum").
		From(drv.cfg.Table).
		Where("1 = 0").
		PlaceholderFormat(drv.cfg.Placeholder).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build checksum column query: %w", err)
	}

	rows, probeErr := drv.db.QueryContext(ctx, query, args...)
	if probeErr == nil {
		return rows.Close()
	}

	if drv.cfg.AddChecksumColumn == "" {
		return fmt.Errorf("failed to read migrations table %s: %w", drv.cfg.Table, probeErr)
	}

	if _, err := drv.db.ExecContext(ctx, fmt.Sprintf(drv.cfg.AddChecksumColumn, drv.cfg.Table)); err != nil {
		return fmt.Errorf(
			"failed to add checksum column to %s: %w", drv.cfg.Table, multierr.Append(probeErr, err),
		)
	}

	return nil
}

// ---

type tx struct {
	tx  *sqlx.Tx
	cfg Config
}

func (t *tx) Execute(ctx context.Context, op schema.Operation) error {
	stmt, err := t.cfg.Dialect.Render(op)
	if err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, t.cfg.Classify(err))
	}

	return nil
}

func (t *tx) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	return listMigrationsLog(ctx, t.tx, t.cfg)
}

func (t *tx) AppendMigrationLog(ctx context.Context, entry migration.Log) error {
	query, args, err := squirrel.Insert(t.cfg.Table).
		Columns("version", "migration_name", "direction", "start_time", "end_time", "checksum").
		Values(
			uint64(entry.Version),
			entry.Name,
			string(entry.Direction),
			entry.AppliedAt.UTC().Format(TimeLayout),
			time.Now().UTC().Format(TimeLayout),
			entry.Checksum,
		).
		PlaceholderFormat(t.cfg.Placeholder).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build migrations log insert: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into migrations log: %w", err)
	}

	return nil
}

func (t *tx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

func (t *tx) Rollback(_ context.Context) error {
	return t.tx.Rollback()
}

// ---

type logRow struct {
	Version   uint64         `db:"version"`
	Name      sql.NullString `db:"migration_name"`
	Direction sql.NullString `db:"direction"`
	StartTime string         `db:"start_time"`
	Checksum  sql.NullString `db:"checksum"`
}

func listMigrationsLog(ctx context.Context, q sqlx.QueryerContext, cfg Config) ([]migration.Log, error) {
	query, args, err := squirrel.Select("version", "migration_name", "direction", "start_time", "checksum").
		From(cfg.Table).
		OrderBy("id").
		PlaceholderFormat(cfg.Placeholder).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build migrations log query: %w", err)
	}

	var rows []logRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query migrations log table: %w", err)
	}

	result := make([]migration.Log, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toLog()
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return result, nil
}

func (row logRow) toLog() (migration.Log, error) {
	entry := migration.Log{
		Migration: migration.Migration{
			Version: migration.Version(row.Version),
			Name:    row.Name.String,
		},
		AppliedAt: ParseLogTime(row.StartTime),
		Checksum:  row.Checksum.String,
	}

	switch strings.ToLower(row.Direction.String) {
	case "u":
		entry.Direction = migration.Up
	case "d":
		entry.Direction = migration.Down
	default:
		return migration.Log{}, fmt.Errorf(
			"%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, row.Direction.String,
		)
	}

	return entry, nil
}

// ParseLogTime reads a start_time value as written by henka or as returned
// by drivers that convert datetime columns themselves. Unparsable values
// become the zero time.
func ParseLogTime(value string) time.Time {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var (
	_ driver.Driver           = (*Driver)(nil)
	_ driver.TransactionalDDL = (*Driver)(nil)
)
