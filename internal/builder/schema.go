package builder

import (
	"fmt"
	"sync"

	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/props"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
)

type ColumnDef struct {
	Name string
	Type types.FieldType
}

// TableDef describes a table for Schema.DefineTable.
type TableDef struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey string
	Indexed    []string
}

// Schema is the registry of tables. Its lock guards committed state across
// all tables: readers hold it shared, a commit holds it exclusively.
type Schema struct {
	locker sync.RWMutex
	Tables *pkg.InsertSortMap[string, *Table]
}

func NewSchema() *Schema {
	return &Schema{Tables: pkg.NewInsertSortMap[string, *Table]()}
}

func (s *Schema) GetLocker() *sync.RWMutex { return &s.locker }

func (s *Schema) Table(name string) (*Table, error) {
	s.locker.RLock()
	defer s.locker.RUnlock()
	if !s.Tables.Has(name) {
		return nil, dberr.UnknownTable.New(name)
	}
	return s.Tables.Get(name), nil
}

func (s *Schema) TableNames() []string {
	s.locker.RLock()
	defer s.locker.RUnlock()
	return append([]string{}, s.Tables.Sorted...)
}

func (def TableDef) validate() error {
	if !name_is_valid(def.Name) {
		return dberr.InvalidSchema.New(fmt.Sprintf("invalid table name %q", def.Name))
	}
	if len(def.Columns) == 0 {
		return dberr.InvalidSchema.New(fmt.Sprintf("table %s has no columns", def.Name))
	}
	seen := pkg.Map[string, types.FieldType]{}
	for _, col := range def.Columns {
		if !name_is_valid(col.Name) {
			return dberr.InvalidSchema.New(fmt.Sprintf("invalid column name %q in table %s", col.Name, def.Name))
		}
		if seen.Has(col.Name) {
			return dberr.InvalidSchema.New(fmt.Sprintf("duplicate column %s in table %s", col.Name, def.Name))
		}
		if !col.Type.IsValid() {
			return dberr.InvalidSchema.New(fmt.Sprintf("invalid type %s for column %s", col.Type, col.Name))
		}
		seen.Set(col.Name, col.Type)
	}
	if len(def.PrimaryKey) == 0 {
		return dberr.InvalidSchema.New(fmt.Sprintf("table %s has no primary key", def.Name))
	}
	if !seen.Has(def.PrimaryKey) {
		return dberr.UnknownColumn.New(def.PrimaryKey, def.Name)
	}
	if !seen.Get(def.PrimaryKey).CanBePrimary() {
		return dberr.InvalidSchema.New(fmt.Sprintf("primary key %s of table %s must be type Int or String", def.PrimaryKey, def.Name))
	}
	for _, col := range def.Indexed {
		if !seen.Has(col) {
			return dberr.UnknownColumn.New(col, def.Name)
		}
	}
	return nil
}

// DefineTable registers a new, empty table.
func (s *Schema) DefineTable(def TableDef) (*Table, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}

	var (
		table *Table
		err   error
	)
	pkg.LockWrap(s, func() {
		if s.Tables.Has(def.Name) {
			err = dberr.TableExists.New(def.Name)
			return
		}
		table = newTable(s, def.Name)
		table.PrimaryKey = def.PrimaryKey
		for _, col := range def.Columns {
			field_props := map[props.FieldProp]string{}
			if col.Name == def.PrimaryKey {
				field_props[props.FieldPropKey] = props.KeyPropPrimary
			}
			table.addField(col.Name, col.Type, field_props)
		}
		for _, col := range def.Indexed {
			if col == def.PrimaryKey {
				continue
			}
			table.Fields.Get(col).Properties[props.FieldPropIndex] = "true"
			table.Indexes.Create(col, table.Rows)
		}
		s.Tables.Push(def.Name, table)
	})
	if err != nil {
		return nil, err
	}

	pkg.DebugLog("defined table", def.Name, "columns", table.Columns(), "indexes", table.Indexed())
	return table, nil
}

// DefineSchema registers every table declared in the schema DSL. Nothing is
// registered if any declaration is invalid.
func (s *Schema) DefineSchema(schema_data string) ([]*Table, error) {
	defs, err := ParseSchema(schema_data)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := def.validate(); err != nil {
			return nil, err
		}
		if _, err := s.Table(def.Name); err == nil {
			return nil, dberr.TableExists.New(def.Name)
		}
	}
	tables := make([]*Table, 0, len(defs))
	for _, def := range defs {
		table, err := s.DefineTable(def)
		if err != nil {
			return tables, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// CreateIndex adds an index on column, back-filled from committed rows.
func (s *Schema) CreateIndex(table_name, column string) error {
	table, err := s.Table(table_name)
	if err != nil {
		return err
	}
	field, err := table.Field(column)
	if err != nil {
		return err
	}
	if column == table.PrimaryKey {
		return nil
	}
	pkg.LockWrap(s, func() {
		field.Properties[props.FieldPropIndex] = "true"
		table.Indexes.Create(column, table.Rows)
	})
	pkg.DebugLog("created index", table_name+"."+column)
	return nil
}

// Clear drops every table and its rows.
func (s *Schema) Clear() {
	pkg.LockWrap(s, func() {
		for _, table := range s.Tables.Values() {
			table.Indexes.Clear()
			table.Rows.Clear()
		}
		s.Tables = pkg.NewInsertSortMap[string, *Table]()
	})
}
