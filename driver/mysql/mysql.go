// Package mysql runs migrations against MySQL and MariaDB.
//
// MySQL commits implicitly before and after every DDL statement, so a
// migration that fails halfway keeps the statements that already ran. The
// log row is still written in the same transaction as the last statement:
// a failed migration is never recorded as applied.
package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/ddl"
	"github.com/root-talis/henka/v2/driver/sqldb"
	"github.com/root-talis/henka/v2/schema"
)

type DriverConfig struct {
	DatabaseName        string
	MigrationsTableName string
}

const createMigrationsTable = "CREATE TABLE IF NOT EXISTS %s (" +
	"id             int not null auto_increment, " +
	"version        bigint, " +
	"migration_name varchar(100) null, " +
	"direction      char(1) null, " + // "u" or "d"
	"start_time     datetime default CURRENT_TIMESTAMP not null, " +
	"end_time       datetime null, " +
	"checksum       varchar(64) null, " +
	"primary key (id)" +
	") default charset utf8"

const addChecksumColumn = "ALTER TABLE %s ADD COLUMN checksum varchar(64) null"

func NewDriver(conn *sql.DB, config DriverConfig) driver.Driver {
	return sqldb.New(sqlx.NewDb(conn, "mysql"), sqldb.Config{
		Dialect:           ddl.MySQL,
		Table:             makeEscapedMigrationsTableName(config),
		CreateTable:       createMigrationsTable,
		AddChecksumColumn: addChecksumColumn,
		Placeholder:       squirrel.Question,
		Classify:          classify,
	})
}

func makeEscapedMigrationsTableName(config DriverConfig) string {
	if config.DatabaseName == "" {
		return ddl.MySQL.Quote(config.MigrationsTableName)
	}

	return fmt.Sprintf(
		"%s.%s",
		ddl.MySQL.Quote(config.DatabaseName),
		ddl.MySQL.Quote(config.MigrationsTableName),
	)
}

// Server error numbers that mean the operation does not fit the current
// structure of the database.
const (
	errDupFieldName  = 1060
	errTableExists   = 1050
	errNoSuchTable   = 1146
	errCantDropField = 1091
	errDupKeyName    = 1061
	errBadFieldError = 1054
	errFKNoIndexRef  = 1822
	errCantCreateFK  = 1005
)

func classify(err error) error {
	var myErr *mysqldrv.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}

	switch myErr.Number {
	case errDupFieldName, errTableExists, errNoSuchTable, errCantDropField,
		errDupKeyName, errBadFieldError, errFKNoIndexRef, errCantCreateFK:
		return fmt.Errorf("%w: %s", schema.ErrConflict, myErr.Message)
	default:
		return err
	}
}
