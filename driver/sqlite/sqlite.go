// Package sqlite runs migrations against SQLite through the pure Go
// modernc.org/sqlite driver. SQLite DDL is transactional, so every migration
// is applied completely or not at all.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/ddl"
	"github.com/root-talis/henka/v2/driver/sqldb"
	"github.com/root-talis/henka/v2/schema"
)

const DriverName = "sqlite"

type DriverConfig struct {
	MigrationsTableName string
}

const createMigrationsTable = "CREATE TABLE IF NOT EXISTS %s (" +
	"id             INTEGER PRIMARY KEY AUTOINCREMENT, " +
	"version        INTEGER, " +
	"migration_name TEXT NULL, " +
	"direction      TEXT NULL, " + // "u" or "d"
	"start_time     TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP, " +
	"end_time       TEXT NULL, " +
	"checksum       TEXT NULL" +
	")"

const addChecksumColumn = "ALTER TABLE %s ADD COLUMN checksum TEXT NULL"

// Open opens the database at dsn, a file path or any URI modernc.org/sqlite
// accepts.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// a single connection keeps ":memory:" databases alive and avoids
	// SQLITE_BUSY between our own connections
	db.SetMaxOpenConns(1)

	return db, nil
}

func NewDriver(conn *sql.DB, config DriverConfig) driver.Driver {
	return sqldb.New(sqlx.NewDb(conn, DriverName), sqldb.Config{
		Dialect:           ddl.SQLite,
		Table:             ddl.SQLite.Quote(config.MigrationsTableName),
		CreateTable:       createMigrationsTable,
		AddChecksumColumn: addChecksumColumn,
		Placeholder:       squirrel.Question,
		Classify:          classify,
		TransactionalDDL:  true,
	})
}

// conflictMessages are fragments of SQLite error messages raised when an
// operation does not fit the current structure.
//
//nolint:gochecknoglobals
var conflictMessages = []string{
	"already exists",
	"no such table",
	"no such column",
	"no such index",
	"duplicate column name",
	"cannot drop",
}

func classify(err error) error {
	msg := err.Error()
	for _, fragment := range conflictMessages {
		if strings.Contains(msg, fragment) {
			return fmt.Errorf("%w: %s", schema.ErrConflict, msg)
		}
	}
	return err
}
