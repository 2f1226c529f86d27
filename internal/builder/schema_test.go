package builder_test

import (
	"testing"

	. "github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/types"
	"gotest.tools/assert"
)

func TestParseSchema(t *testing.T) {
	defs, err := ParseSchema("$TABLE a {\n a Int key(primary)\n }")
	assert.NilError(t, err)
	assert.Equal(t, len(defs), 1, "expected only one table")
}

func TestParseSchemaIndexes(t *testing.T) {
	defs, err := ParseSchema(`
$TABLE a {
    a Int key(primary)
    b String index(true)
    c Bytes index(false)
}

$TABLE b {
    // string keys
    d String key(primary)
}
        `)
	assert.NilError(t, err)
	assert.Equal(t, len(defs), 2, "expected two tables")
	assert.Equal(t, defs[0].PrimaryKey, "a", "expected a primary key named 'a'")
	assert.DeepEqual(t, defs[0].Indexed, []string{"b"})
	assert.Equal(t, len(defs[0].Columns), 3)
	assert.Equal(t, defs[1].PrimaryKey, "d")
}

func TestDuplicateTable(t *testing.T) {
	_, err := ParseSchema(`
$TABLE a {
    a Int key(primary)
}

$TABLE a {
    b Int key(primary)
}
        `)

	assert.ErrorContains(t, err, "Duplicate table a")
}

func TestDuplicateField(t *testing.T) {
	_, err := ParseSchema(`
$TABLE a {
    a Int key(primary)
    a String
}
        `)

	assert.ErrorContains(t, err, "Duplicate field a")
}

func TestMultiplePrimaryKey(t *testing.T) {
	_, err := ParseSchema(`
$TABLE a {
    a Int key(primary)
    b Int key(primary)
}
        `)
	assert.ErrorContains(t, err, "Table can't have multiple primary keys")
}

func TestMissingPrimaryKey(t *testing.T) {
	_, err := ParseSchema(`
$TABLE a {
    a Int
}
        `)
	assert.ErrorContains(t, err, "Table a has no primary key")
}

func TestNonKeyablePrimaryKey(t *testing.T) {
	_, err := ParseSchema(`
$TABLE a {
    a Float key(primary)
}
        `)
	assert.ErrorContains(t, err, "field(a Float key(primary)) must be type Int or String")
}

func TestUnclosedTable(t *testing.T) {
	_, err := ParseSchema(`
$TABLE a {
    a Int key(primary)
        `)
	assert.ErrorContains(t, err, "Table a is not closed")
}

func TestDefineTable(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		s := NewSchema()
		table, err := s.DefineTable(TableDef{
			Name:       "items",
			Columns:    []ColumnDef{{"id", types.FieldTypeInt}, {"name", types.FieldTypeString}},
			PrimaryKey: "id",
		})
		assert.NilError(t, err)
		assert.DeepEqual(t, table.Columns(), []string{"id", "name"})
		assert.Assert(t, table.AutoIncrement())
		assert.DeepEqual(t, s.TableNames(), []string{"items"})
	})

	t.Run("exists", func(t *testing.T) {
		s := NewSchema()
		def := TableDef{Name: "a", Columns: []ColumnDef{{"id", types.FieldTypeString}}, PrimaryKey: "id"}
		_, err := s.DefineTable(def)
		assert.NilError(t, err)
		_, err = s.DefineTable(def)
		assert.Assert(t, dberr.TableExists.Is(err))
	})

	t.Run("unknown primary key", func(t *testing.T) {
		_, err := NewSchema().DefineTable(TableDef{
			Name: "a", Columns: []ColumnDef{{"id", types.FieldTypeInt}}, PrimaryKey: "key",
		})
		assert.Assert(t, dberr.UnknownColumn.Is(err))
	})

	t.Run("unknown indexed column", func(t *testing.T) {
		_, err := NewSchema().DefineTable(TableDef{
			Name: "a", Columns: []ColumnDef{{"id", types.FieldTypeInt}}, PrimaryKey: "id", Indexed: []string{"x"},
		})
		assert.Assert(t, dberr.UnknownColumn.Is(err))
	})

	t.Run("bool primary key", func(t *testing.T) {
		_, err := NewSchema().DefineTable(TableDef{
			Name: "a", Columns: []ColumnDef{{"id", types.FieldTypeBool}}, PrimaryKey: "id",
		})
		assert.Assert(t, dberr.InvalidSchema.Is(err))
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := NewSchema().Table("nope")
		assert.Assert(t, dberr.UnknownTable.Is(err))
	})
}

func TestDefineSchema(t *testing.T) {
	s := NewSchema()
	tables, err := s.DefineSchema(`
$TABLE items {
    id    Int    key(primary)
    name  String index(true)
    price Float  index(true)
}
`)
	assert.NilError(t, err)
	assert.Equal(t, len(tables), 1)
	assert.DeepEqual(t, tables[0].Indexed(), []string{"name", "price"})

	_, err = s.DefineSchema("$TABLE items {\n id Int key(primary)\n}")
	assert.Assert(t, dberr.TableExists.Is(err))
}

func TestCreateIndexBackfills(t *testing.T) {
	s := NewSchema()
	table, err := s.DefineTable(TableDef{
		Name:       "items",
		Columns:    []ColumnDef{{"id", types.FieldTypeInt}, {"price", types.FieldTypeFloat}},
		PrimaryKey: "id",
	})
	assert.NilError(t, err)
	assert.NilError(t, table.Rows.Insert(int64(1), Row{"id": int64(1), "price": 2.5}))
	assert.NilError(t, table.Rows.Insert(int64(2), Row{"id": int64(2), "price": 2.5}))

	assert.NilError(t, s.CreateIndex("items", "price"))
	idx, ok := table.Indexes.Get("price")
	assert.Assert(t, ok)
	assert.DeepEqual(t, idx.LookupEq(2.5), []any{int64(1), int64(2)})

	err = s.CreateIndex("items", "nope")
	assert.Assert(t, dberr.UnknownColumn.Is(err))
}

func TestSchemaClear(t *testing.T) {
	s := NewSchema()
	_, err := s.DefineSchema("$TABLE a {\n id Int key(primary)\n}")
	assert.NilError(t, err)
	s.Clear()
	assert.Equal(t, len(s.TableNames()), 0)
}
