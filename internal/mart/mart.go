// Package mart is the catalog of every table the engine reads or publishes:
// names, column schemas and Go row types.
package mart

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// ErrSchemaMismatch is returned when rows do not have the row type registered for a table.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrUnknownTable is returned for table names absent from the catalog.
var ErrUnknownTable = errors.New("unknown table")

// ColumnType is the SQL type of a published column.
type ColumnType string

// ColumnType values used by the catalog.
const (
	Text        ColumnType = "TEXT"
	Integer     ColumnType = "INTEGER"
	Numeric     ColumnType = "NUMERIC"
	Boolean     ColumnType = "BOOLEAN"
	Timestamptz ColumnType = "TIMESTAMPTZ"
)

// Kind separates source tables written by the external loader from tables the engine publishes.
type Kind string

const (
	KindSource  Kind = "source"
	KindDerived Kind = "derived"
)

// Column is one column of a table schema.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes one table.
type Schema struct {
	Name    string
	Kind    Kind
	Columns []Column
	Key     []string

	rowType reflect.Type
	values  func(row any) []any
}

// ColumnNames returns the column names in order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// RowType returns the Go type of one row.
func (s Schema) RowType() reflect.Type { return s.rowType }

// Check verifies that rows is a slice of the registered row type.
func (s Schema) Check(rows any) error {
	if rows == nil {
		return fmt.Errorf("table %s: nil rows: %w", s.Name, ErrSchemaMismatch)
	}
	got := reflect.TypeOf(rows)
	if got != reflect.SliceOf(s.rowType) {
		return fmt.Errorf("table %s: got %s, want []%s: %w", s.Name, got, s.rowType, ErrSchemaMismatch)
	}
	return nil
}

// Values encodes every row into column-ordered values.
func (s Schema) Values(rows any) ([][]any, error) {
	if err := s.Check(rows); err != nil {
		return nil, err
	}
	v := reflect.ValueOf(rows)
	out := make([][]any, v.Len())
	for i := range out {
		out[i] = s.values(v.Index(i).Interface())
	}
	return out, nil
}

// Records encodes every row as a column-name keyed map. Null columns are nil.
func (s Schema) Records(rows any) ([]map[string]any, error) {
	values, err := s.Values(rows)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(values))
	for i, row := range values {
		rec := make(map[string]any, len(s.Columns))
		for j, c := range s.Columns {
			rec[c.Name] = row[j]
		}
		out[i] = rec
	}
	return out, nil
}

var catalog = map[string]Schema{}

func register[T any](name string, kind Kind, key []string, columns []Column, values func(T) []any) {
	if _, dup := catalog[name]; dup {
		panic("mart: duplicate table " + name)
	}
	catalog[name] = Schema{
		Name:    name,
		Kind:    kind,
		Columns: columns,
		Key:     key,
		rowType: reflect.TypeOf((*T)(nil)).Elem(),
		values:  func(row any) []any { return values(row.(T)) },
	}
}

// Lookup returns the schema registered for name.
func Lookup(name string) (Schema, error) {
	s, ok := catalog[name]
	if !ok {
		return Schema{}, fmt.Errorf("%q: %w", name, ErrUnknownTable)
	}
	return s, nil
}

// Names returns the names of all tables of the given kind, sorted.
func Names(kind Kind) []string {
	var names []string
	for name, s := range catalog {
		if s.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Table is a named set of rows, the unit a component publishes.
type Table struct {
	Name string
	Rows any // []T of the registered row type
}

// Len returns the number of rows.
func (t Table) Len() int {
	if t.Rows == nil {
		return 0
	}
	v := reflect.ValueOf(t.Rows)
	if v.Kind() != reflect.Slice {
		return 0
	}
	return v.Len()
}

// Validate checks the table against the catalog.
func (t Table) Validate() error {
	s, err := Lookup(t.Name)
	if err != nil {
		return err
	}
	return s.Check(t.Rows)
}

// Dataset holds the tables visible to a component, keyed by name. It is read-only once handed out.
type Dataset map[string]Table

// Put stores rows under name.
func (d Dataset) Put(name string, rows any) {
	d[name] = Table{Name: name, Rows: rows}
}

// Get returns the typed rows of the named table.
func Get[T any](d Dataset, name string) ([]T, error) {
	t, ok := d[name]
	if !ok {
		return nil, fmt.Errorf("table %s not in dataset: %w", name, ErrUnknownTable)
	}
	rows, ok := t.Rows.([]T)
	if !ok {
		return nil, fmt.Errorf("table %s: rows are %T: %w", name, t.Rows, ErrSchemaMismatch)
	}
	return rows, nil
}
