package schema

import (
	"fmt"
	"reflect"
	"sort"
)

// Snapshot is a structural model of a schema: tables with their columns,
// primary keys, indexes and foreign keys. Column order is not tracked, two
// snapshots are equal when they hold the same sets.
//
// A Snapshot is not safe for concurrent use.
type Snapshot struct {
	tables map[string]*table
}

type table struct {
	columns     map[string]Column
	primaryKey  []string
	indexes     map[string]CreateIndex
	foreignKeys map[string]ForeignKey
}

func NewSnapshot() *Snapshot {
	return &Snapshot{tables: make(map[string]*table)}
}

func (s *Snapshot) Clone() *Snapshot {
	clone := NewSnapshot()
	for name, t := range s.tables {
		clone.tables[name] = t.clone()
	}
	return clone
}

func (t *table) clone() *table {
	c := &table{
		columns:     make(map[string]Column, len(t.columns)),
		primaryKey:  append([]string(nil), t.primaryKey...),
		indexes:     make(map[string]CreateIndex, len(t.indexes)),
		foreignKeys: make(map[string]ForeignKey, len(t.foreignKeys)),
	}
	for k, v := range t.columns {
		c.columns[k] = v
	}
	for k, v := range t.indexes {
		c.indexes[k] = v
	}
	for k, v := range t.foreignKeys {
		c.foreignKeys[k] = v
	}
	return c
}

// Equal reports whether both snapshots describe the same structure.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.tables) != len(other.tables) {
		return false
	}

	for name, t := range s.tables {
		o, ok := other.tables[name]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(t.normalized(), o.normalized()) {
			return false
		}
	}

	return true
}

// normalized drops the distinction between nil and empty collections so
// DeepEqual compares content only.
func (t *table) normalized() table {
	n := *t.clone()
	if len(n.primaryKey) == 0 {
		n.primaryKey = nil
	}
	return n
}

func (s *Snapshot) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.tables[name]
	return ok
}

func (s *Snapshot) Column(tableName, column string) (Column, bool) {
	t, ok := s.tables[tableName]
	if !ok {
		return Column{}, false
	}
	c, ok := t.columns[column]
	return c, ok
}

func (s *Snapshot) HasIndex(tableName, index string) bool {
	t, ok := s.tables[tableName]
	if !ok {
		return false
	}
	_, ok = t.indexes[index]
	return ok
}

func (s *Snapshot) HasForeignKey(tableName, name string) bool {
	t, ok := s.tables[tableName]
	if !ok {
		return false
	}
	_, ok = t.foreignKeys[name]
	return ok
}

// ---

// ApplyAll applies ops in order and stops at the first failure. The snapshot
// keeps the changes made by the operations preceding the failed one; callers
// that need all-or-nothing apply to a Clone.
func (s *Snapshot) ApplyAll(ops []Operation) error {
	for i, op := range ops {
		if err := s.Apply(op); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, op, err)
		}
	}
	return nil
}

// Apply changes the snapshot according to op. Any mismatch with the current
// structure is reported as ErrConflict and leaves the snapshot untouched.
func (s *Snapshot) Apply(op Operation) error {
	if err := Validate(op); err != nil {
		return err
	}

	switch o := op.(type) {
	case AddColumn:
		return s.addColumn(o)
	case DropColumn:
		return s.dropColumn(o)
	case CreateTable:
		return s.createTable(o)
	case DropTable:
		return s.dropTable(o)
	case CreateIndex:
		return s.createIndex(o)
	case DropIndex:
		return s.dropIndex(o)
	case AddForeignKey:
		return s.addForeignKey(o.Table, o.ForeignKey)
	case DropForeignKey:
		return s.dropForeignKey(o)
	default:
		return fmt.Errorf("%w: unknown operation type %T", ErrInvalidOperation, op)
	}
}

func (s *Snapshot) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, conflict("table %s does not exist", name)
	}
	return t, nil
}

func (s *Snapshot) addColumn(op AddColumn) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.columns[op.Name]; ok {
		return conflict("column %s.%s already exists", op.Table, op.Name)
	}

	t.columns[op.Name] = op.Column
	return nil
}

func (s *Snapshot) dropColumn(op DropColumn) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.columns[op.Name]; !ok {
		return conflict("column %s.%s does not exist", op.Table, op.Name)
	}
	if contains(t.primaryKey, op.Name) {
		return conflict("column %s.%s is part of the primary key", op.Table, op.Name)
	}
	for _, idx := range t.indexes {
		if contains(idx.Columns, op.Name) {
			return conflict("column %s.%s is used by index %s", op.Table, op.Name, idx.Name)
		}
	}
	for _, fk := range t.foreignKeys {
		if contains(fk.Columns, op.Name) {
			return conflict("column %s.%s is used by foreign key %s", op.Table, op.Name, fk.Name)
		}
	}
	if ref := s.referencingKey(op.Table, op.Name); ref != "" {
		return conflict("column %s.%s is referenced by foreign key %s", op.Table, op.Name, ref)
	}

	delete(t.columns, op.Name)
	return nil
}

func (s *Snapshot) createTable(op CreateTable) error {
	if _, ok := s.tables[op.Name]; ok {
		return conflict("table %s already exists", op.Name)
	}

	t := &table{
		columns:     make(map[string]Column, len(op.Columns)),
		primaryKey:  append([]string(nil), op.PrimaryKey...),
		indexes:     make(map[string]CreateIndex),
		foreignKeys: make(map[string]ForeignKey, len(op.ForeignKeys)),
	}
	for _, c := range op.Columns {
		t.columns[c.Name] = c
	}
	for _, name := range op.PrimaryKey {
		if _, ok := t.columns[name]; !ok {
			return conflict("primary key column %s.%s does not exist", op.Name, name)
		}
	}

	// register first so self-referencing keys resolve
	s.tables[op.Name] = t
	for _, fk := range op.ForeignKeys {
		if err := s.addForeignKey(op.Name, fk); err != nil {
			delete(s.tables, op.Name)
			return err
		}
	}

	return nil
}

func (s *Snapshot) dropTable(op DropTable) error {
	if _, err := s.table(op.Name); err != nil {
		return err
	}
	for name, t := range s.tables {
		if name == op.Name {
			continue
		}
		for _, fk := range t.foreignKeys {
			if fk.RefTable == op.Name {
				return conflict("table %s is referenced by foreign key %s.%s", op.Name, name, fk.Name)
			}
		}
	}

	delete(s.tables, op.Name)
	return nil
}

func (s *Snapshot) createIndex(op CreateIndex) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.indexes[op.Name]; ok {
		return conflict("index %s already exists on %s", op.Name, op.Table)
	}
	for _, c := range op.Columns {
		if _, ok := t.columns[c]; !ok {
			return conflict("index %s: column %s.%s does not exist", op.Name, op.Table, c)
		}
	}

	t.indexes[op.Name] = op
	return nil
}

func (s *Snapshot) dropIndex(op DropIndex) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.indexes[op.Name]; !ok {
		return conflict("index %s does not exist on %s", op.Name, op.Table)
	}

	delete(t.indexes, op.Name)
	return nil
}

func (s *Snapshot) addForeignKey(tableName string, fk ForeignKey) error {
	t, err := s.table(tableName)
	if err != nil {
		return err
	}
	if _, ok := t.foreignKeys[fk.Name]; ok {
		return conflict("foreign key %s already exists on %s", fk.Name, tableName)
	}
	for _, c := range fk.Columns {
		if _, ok := t.columns[c]; !ok {
			return conflict("foreign key %s: column %s.%s does not exist", fk.Name, tableName, c)
		}
	}

	ref, ok := s.tables[fk.RefTable]
	if !ok {
		return conflict("foreign key %s: referenced table %s does not exist", fk.Name, fk.RefTable)
	}
	for _, c := range fk.RefColumns {
		if _, ok := ref.columns[c]; !ok {
			return conflict("foreign key %s: referenced column %s.%s does not exist", fk.Name, fk.RefTable, c)
		}
	}

	t.foreignKeys[fk.Name] = fk
	return nil
}

func (s *Snapshot) dropForeignKey(op DropForeignKey) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.foreignKeys[op.Name]; !ok {
		return conflict("foreign key %s does not exist on %s", op.Name, op.Table)
	}

	delete(t.foreignKeys, op.Name)
	return nil
}

// referencingKey returns the name of a foreign key on another table that
// points at tableName.column, or "" when there is none.
func (s *Snapshot) referencingKey(tableName, column string) string {
	names := s.Tables()
	for _, name := range names {
		if name == tableName {
			continue
		}
		for _, fk := range s.tables[name].foreignKeys {
			if fk.RefTable == tableName && contains(fk.RefColumns, column) {
				return name + "." + fk.Name
			}
		}
	}
	return ""
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
