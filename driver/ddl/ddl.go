// Package ddl renders schema operations as SQL statements for the dialects
// henka ships drivers for.
package ddl

import (
	"fmt"
	"strings"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/schema"
)

type Dialect struct {
	Name string

	Quote func(identifier string) string

	// DropIndexOnTable renders "DROP INDEX i ON t" instead of "DROP INDEX i".
	DropIndexOnTable bool

	// DropForeignKey is the clause used to drop a foreign key:
	// "CONSTRAINT" or "FOREIGN KEY".
	DropForeignKey string

	// AlterForeignKeys is false when foreign keys can only be declared
	// with CREATE TABLE.
	AlterForeignKeys bool

	FilteredIndexes bool
}

var (
	Postgres = Dialect{
		Name:             "postgres",
		Quote:            quoteDouble,
		DropForeignKey:   "CONSTRAINT",
		AlterForeignKeys: true,
		FilteredIndexes:  true,
	}

	MySQL = Dialect{
		Name:             "mysql",
		Quote:            quoteBacktick,
		DropIndexOnTable: true,
		DropForeignKey:   "FOREIGN KEY",
		AlterForeignKeys: true,
	}

	SQLite = Dialect{
		Name:            "sqlite",
		Quote:           quoteDouble,
		FilteredIndexes: true,
	}
)

// Render returns the statement for op.
func (d Dialect) Render(op schema.Operation) (string, error) {
	switch o := op.(type) {
	case schema.AddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(o.Table), d.column(o.Column)), nil

	case schema.DropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(o.Table), d.Quote(o.Name)), nil

	case schema.CreateTable:
		return d.createTable(o), nil

	case schema.DropTable:
		return "DROP TABLE " + d.Quote(o.Name), nil

	case schema.CreateIndex:
		return d.createIndex(o)

	case schema.DropIndex:
		if d.DropIndexOnTable {
			return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(o.Name), d.Quote(o.Table)), nil
		}
		return "DROP INDEX " + d.Quote(o.Name), nil

	case schema.AddForeignKey:
		if !d.AlterForeignKeys {
			return "", d.unsupported(op)
		}
		return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(o.Table), d.foreignKey(o.ForeignKey)), nil

	case schema.DropForeignKey:
		if !d.AlterForeignKeys {
			return "", d.unsupported(op)
		}
		return fmt.Sprintf(
			"ALTER TABLE %s DROP %s %s", d.Quote(o.Table), d.DropForeignKey, d.Quote(o.Name),
		), nil

	default:
		return "", fmt.Errorf("%w: unknown operation type %T", schema.ErrInvalidOperation, op)
	}
}

func (d Dialect) createTable(op schema.CreateTable) string {
	parts := make([]string, 0, len(op.Columns)+len(op.ForeignKeys)+1)
	for _, c := range op.Columns {
		parts = append(parts, d.column(c))
	}
	if len(op.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+d.list(op.PrimaryKey)+")")
	}
	for _, fk := range op.ForeignKeys {
		parts = append(parts, d.foreignKey(fk))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(op.Name), strings.Join(parts, ", "))
}

func (d Dialect) createIndex(op schema.CreateIndex) (string, error) {
	if op.Filter != "" && !d.FilteredIndexes {
		return "", d.unsupported(op)
	}

	kind := "INDEX"
	if op.Unique {
		kind = "UNIQUE INDEX"
	}

	stmt := fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, d.Quote(op.Name), d.Quote(op.Table), d.list(op.Columns))
	if op.Filter != "" {
		stmt += " WHERE " + op.Filter
	}

	return stmt, nil
}

func (d Dialect) column(c schema.Column) string {
	s := d.Quote(c.Name) + " " + c.Type
	if !c.Nullable {
		s += " NOT NULL"
	}
	if c.Default != nil {
		s += " DEFAULT " + *c.Default
	}
	return s
}

func (d Dialect) foreignKey(fk schema.ForeignKey) string {
	s := fmt.Sprintf(
		"CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Quote(fk.Name),
		d.list(fk.Columns),
		d.Quote(fk.RefTable),
		d.list(fk.RefColumns),
	)

	switch fk.OnDelete {
	case schema.Cascade:
		s += " ON DELETE CASCADE"
	case schema.Restrict:
		s += " ON DELETE RESTRICT"
	case schema.SetNull:
		s += " ON DELETE SET NULL"
	}

	return s
}

func (d Dialect) list(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func (d Dialect) unsupported(op schema.Operation) error {
	return fmt.Errorf("%w: %s can not %s", driver.ErrUnsupportedOperation, d.Name, op)
}

// ---

func quoteDouble(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteBacktick(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}
