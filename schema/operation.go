// Package schema describes structural schema changes as a closed set of
// operations and provides an in-memory model they can be applied to.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict is returned when an operation does not fit the current
	// structure: adding something that exists, dropping something that does
	// not, or referencing a table or column that is missing.
	ErrConflict = errors.New("schema conflict")

	ErrInvalidOperation = errors.New("invalid schema operation")
)

// Operation is one structural schema change. The set of implementations is
// closed: AddColumn, DropColumn, CreateTable, DropTable, CreateIndex,
// DropIndex, AddForeignKey and DropForeignKey.
type Operation interface {
	fmt.Stringer
	operation()
}

// ---

type ReferentialAction string

const (
	Cascade  ReferentialAction = "cascade"
	Restrict ReferentialAction = "restrict"
	SetNull  ReferentialAction = "setNull"
)

type Column struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Nullable bool    `yaml:"nullable"`
	Default  *string `yaml:"default,omitempty"`
}

type ForeignKey struct {
	Name       string            `yaml:"name"`
	Columns    []string          `yaml:"columns"`
	RefTable   string            `yaml:"refTable"`
	RefColumns []string          `yaml:"refColumns"`
	OnDelete   ReferentialAction `yaml:"onDelete,omitempty"`
}

// ---

type AddColumn struct {
	Table  string `yaml:"table"`
	Column `yaml:",inline"`
}

type DropColumn struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type CreateTable struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  []string     `yaml:"primaryKey,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreignKeys,omitempty"`
}

type DropTable struct {
	Name string `yaml:"name"`
}

type CreateIndex struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
	Filter  string   `yaml:"filter,omitempty"`
}

type DropIndex struct {
	Name  string `yaml:"name"`
	Table string `yaml:"table"`
}

type AddForeignKey struct {
	Table      string `yaml:"table"`
	ForeignKey `yaml:",inline"`
}

type DropForeignKey struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

func (AddColumn) operation()      {}
func (DropColumn) operation()     {}
func (CreateTable) operation()    {}
func (DropTable) operation()      {}
func (CreateIndex) operation()    {}
func (DropIndex) operation()      {}
func (AddForeignKey) operation()  {}
func (DropForeignKey) operation() {}

// ---

// String renders the full definition of the column. It is part of the
// migration checksum, so every attribute must appear in it.
func (c Column) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	b.WriteString(c.Type)

	if c.Nullable {
		b.WriteString(" null")
	} else {
		b.WriteString(" not null")
	}

	if c.Default != nil {
		b.WriteString(" default ")
		b.WriteString(*c.Default)
	}

	return b.String()
}

func (fk ForeignKey) String() string {
	s := fmt.Sprintf(
		"foreign key %s (%s) references %s (%s)",
		fk.Name,
		strings.Join(fk.Columns, ", "),
		fk.RefTable,
		strings.Join(fk.RefColumns, ", "),
	)
	if fk.OnDelete != "" {
		s += " on delete " + string(fk.OnDelete)
	}
	return s
}

func (op AddColumn) String() string {
	return fmt.Sprintf("add column %s.%s", op.Table, op.Column)
}

func (op DropColumn) String() string {
	return fmt.Sprintf("drop column %s.%s", op.Table, op.Name)
}

func (op CreateTable) String() string {
	parts := make([]string, 0, len(op.Columns)+len(op.ForeignKeys)+1)
	for _, c := range op.Columns {
		parts = append(parts, c.String())
	}
	if len(op.PrimaryKey) > 0 {
		parts = append(parts, "primary key ("+strings.Join(op.PrimaryKey, ", ")+")")
	}
	for _, fk := range op.ForeignKeys {
		parts = append(parts, fk.String())
	}
	return fmt.Sprintf("create table %s (%s)", op.Name, strings.Join(parts, ", "))
}

func (op DropTable) String() string {
	return "drop table " + op.Name
}

func (op CreateIndex) String() string {
	kind := "index"
	if op.Unique {
		kind = "unique index"
	}
	s := fmt.Sprintf("create %s %s on %s (%s)", kind, op.Name, op.Table, strings.Join(op.Columns, ", "))
	if op.Filter != "" {
		s += " where " + op.Filter
	}
	return s
}

func (op DropIndex) String() string {
	return fmt.Sprintf("drop index %s on %s", op.Name, op.Table)
}

func (op AddForeignKey) String() string {
	return fmt.Sprintf("alter table %s add %s", op.Table, op.ForeignKey)
}

func (op DropForeignKey) String() string {
	return fmt.Sprintf("alter table %s drop foreign key %s", op.Table, op.Name)
}

// ---

// Validate checks that op carries every attribute needed to identify and
// apply it. It does not look at any schema state.
func Validate(op Operation) error {
	var err error

	switch o := op.(type) {
	case AddColumn:
		err = requireNames("table", o.Table, "column", o.Name, "type", o.Type)
	case DropColumn:
		err = requireNames("table", o.Table, "column", o.Name)
	case CreateTable:
		err = validateCreateTable(o)
	case DropTable:
		err = requireNames("table", o.Name)
	case CreateIndex:
		err = requireNames("index", o.Name, "table", o.Table)
		if err == nil && len(o.Columns) == 0 {
			err = fmt.Errorf("index %s has no columns", o.Name)
		}
	case DropIndex:
		err = requireNames("index", o.Name, "table", o.Table)
	case AddForeignKey:
		err = requireNames("table", o.Table)
		if err == nil {
			err = validateForeignKey(o.ForeignKey)
		}
	case DropForeignKey:
		err = requireNames("table", o.Table, "foreign key", o.Name)
	case nil:
		err = errors.New("operation is nil")
	default:
		err = fmt.Errorf("unknown operation type %T", op)
	}

	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOperation, err.Error())
	}

	return nil
}

func validateCreateTable(op CreateTable) error {
	if err := requireNames("table", op.Name); err != nil {
		return err
	}
	if len(op.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", op.Name)
	}

	seen := make(map[string]struct{}, len(op.Columns))
	for _, c := range op.Columns {
		if err := requireNames("column", c.Name, "type", c.Type); err != nil {
			return fmt.Errorf("table %s: %w", op.Name, err)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("table %s: column %s is declared twice", op.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	for _, fk := range op.ForeignKeys {
		if err := validateForeignKey(fk); err != nil {
			return fmt.Errorf("table %s: %w", op.Name, err)
		}
	}

	return nil
}

func validateForeignKey(fk ForeignKey) error {
	if err := requireNames("foreign key", fk.Name, "referenced table", fk.RefTable); err != nil {
		return err
	}
	if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RefColumns) {
		return fmt.Errorf("foreign key %s must map the same non-zero number of columns", fk.Name)
	}

	switch fk.OnDelete {
	case "", Cascade, Restrict, SetNull:
	default:
		return fmt.Errorf("foreign key %s: unknown on delete behaviour %q", fk.Name, fk.OnDelete)
	}

	return nil
}

func requireNames(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s name is empty", pairs[i])
		}
	}
	return nil
}
