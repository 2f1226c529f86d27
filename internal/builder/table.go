package builder

import (
	"sync/atomic"

	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/props"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
)

type Table struct {
	Name       string
	Fields     *pkg.InsertSortMap[string, *Field]
	PrimaryKey string

	// highest integer primary key ever observed
	IdTracker atomic.Int64 `json:"-"`

	Rows    *Rows         `json:"-"`
	Indexes *IndexManager `json:"-"`
	Schema  *Schema       `json:"-"`
}

func newTable(schema *Schema, name string) *Table {
	t := &Table{
		Name:   name,
		Fields: pkg.NewInsertSortMap[string, *Field](),
		Schema: schema,
	}
	t.Rows = NewRows(t)
	t.Indexes = NewIndexManager(t)
	return t
}

func (t *Table) PrimaryField() *Field {
	return t.Fields.Get(t.PrimaryKey)
}

func (t *Table) Field(name string) (*Field, error) {
	if !t.Fields.Has(name) {
		return nil, dberr.UnknownColumn.New(name, t.Name)
	}
	return t.Fields.Get(name), nil
}

// Columns returns the column names in declaration order.
func (t *Table) Columns() []string {
	return append([]string{}, t.Fields.Sorted...)
}

// Indexed returns the names of the indexed columns.
func (t *Table) Indexed() []string {
	return t.Indexes.Columns()
}

// AutoIncrement reports whether primary keys are allocated by the table.
func (t *Table) AutoIncrement() bool {
	return t.PrimaryField().BuiltinType == types.FieldTypeInt
}

func (t *Table) NextId() int64 {
	return t.IdTracker.Add(1)
}

// ObserveId advances the id tracker past a manually assigned key.
func (t *Table) ObserveId(key any) {
	id, ok := pkg.NumToInt64(key)
	if !ok {
		return
	}
	for {
		current := t.IdTracker.Load()
		if id <= current || t.IdTracker.CompareAndSwap(current, id) {
			return
		}
	}
}

// NormalizeKey converts a primary key given by a caller to its stored form.
func (t *Table) NormalizeKey(key any) (any, error) {
	if key == nil {
		return nil, dberr.MissingPrimaryKey.New(t.PrimaryKey, t.Name)
	}
	return t.PrimaryField().Normalize(key)
}

// NormalizeRow builds a full row from input: every declared column is
// present and values are converted to their column types.
func (t *Table) NormalizeRow(input map[string]any) (Row, error) {
	for col := range input {
		if !t.Fields.Has(col) {
			return nil, dberr.UnknownColumn.New(col, t.Name)
		}
	}
	row := make(Row, t.Fields.Len())
	for _, name := range t.Fields.Sorted {
		val, err := t.Fields.Get(name).Normalize(input[name])
		if err != nil {
			return nil, err
		}
		row.Set(name, val)
	}
	return row, nil
}

// NormalizeChanges converts a partial set of column values.
func (t *Table) NormalizeChanges(changes map[string]any) (Row, error) {
	row := make(Row, len(changes))
	for col, val := range changes {
		field, err := t.Field(col)
		if err != nil {
			return nil, err
		}
		val, err := field.Normalize(val)
		if err != nil {
			return nil, err
		}
		row.Set(col, val)
	}
	return row, nil
}

// AssignKey fills in the primary key of a normalized row, allocating one
// for integer keys and observing manually supplied ones.
func (t *Table) AssignKey(row Row) (any, error) {
	key := row.Get(t.PrimaryKey)
	if key == nil {
		if !t.AutoIncrement() {
			return nil, dberr.MissingPrimaryKey.New(t.PrimaryKey, t.Name)
		}
		key = t.NextId()
		row.Set(t.PrimaryKey, key)
		return key, nil
	}
	if t.AutoIncrement() {
		t.ObserveId(key)
	}
	return key, nil
}

func (t *Table) Key(row Row) any {
	return row.Get(t.PrimaryKey)
}

func (t *Table) addField(name string, builtin_type types.FieldType, field_props map[props.FieldProp]string) *Field {
	if field_props == nil {
		field_props = map[props.FieldProp]string{}
	}
	field := &Field{Name: name, BuiltinType: builtin_type, Properties: field_props, Table: t}
	t.Fields.Push(name, field)
	return field
}
