package transaction_test

import (
	"testing"

	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/internal/metrics"
	"github.com/tobsdb/memdb/internal/query"
	. "github.com/tobsdb/memdb/internal/transaction"
	"github.com/tobsdb/memdb/internal/types"
	"gotest.tools/assert"
)

func newTestSchema(t *testing.T) *builder.Schema {
	s := builder.NewSchema()
	_, err := s.DefineTable(builder.TableDef{
		Name: "items",
		Columns: []builder.ColumnDef{
			{Name: "id", Type: types.FieldTypeInt},
			{Name: "name", Type: types.FieldTypeString},
		},
		PrimaryKey: "id",
		Indexed:    []string{"name"},
	})
	assert.NilError(t, err)
	_, err = s.DefineTable(builder.TableDef{
		Name: "tags",
		Columns: []builder.ColumnDef{
			{Name: "slug", Type: types.FieldTypeString},
			{Name: "label", Type: types.FieldTypeString},
		},
		PrimaryKey: "slug",
	})
	assert.NilError(t, err)
	return s
}

func where(e expr.Expr) *expr.Expr { return &e }

func committedNames(t *testing.T, s *builder.Schema) []any {
	table, err := s.Table("items")
	assert.NilError(t, err)
	names := []any{}
	table.Rows.Scan(func(row builder.Row) bool {
		names = append(names, row.Get("name"))
		return true
	})
	return names
}

func TestInsertCommitGet(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})

	inst, err := session.Insert("items", map[string]any{"id": 1, "name": "foo"})
	assert.NilError(t, err)
	assert.Equal(t, inst.Key(), int64(1))
	assert.DeepEqual(t, committedNames(t, s), []any{})

	assert.NilError(t, session.Commit())
	assert.DeepEqual(t, committedNames(t, s), []any{"foo"})
	assert.Equal(t, session.Pending(), 0)

	a, err := session.Get("items", 1)
	assert.NilError(t, err)
	b, err := session.Get("items", int64(1))
	assert.NilError(t, err)
	assert.Assert(t, a == b)
	assert.Assert(t, a == inst)
	assert.DeepEqual(t, a.Values(), builder.Row{"id": int64(1), "name": "foo"})

	missing, err := session.Get("items", 2)
	assert.NilError(t, err)
	assert.Assert(t, missing == nil)

	t.Run("other sessions see committed rows", func(t *testing.T) {
		other := NewSession(s, Options{})
		inst, err := other.Get("items", 1)
		assert.NilError(t, err)
		assert.Equal(t, inst.Get("name"), "foo")
		assert.Assert(t, inst != a)
	})
}

func TestRollbackRestoresInPlaceEdits(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})

	inst, err := session.Insert("items", map[string]any{"id": 1, "name": "foo"})
	assert.NilError(t, err)
	assert.NilError(t, session.Commit())

	assert.NilError(t, inst.Set("name", "updated"))
	assert.Equal(t, inst.Get("name"), "updated")

	first := session.Ctx().ID()
	assert.NilError(t, session.Rollback())
	assert.Equal(t, inst.Get("name"), "foo")
	assert.Assert(t, session.Ctx().ID() != first)
	assert.Equal(t, session.Ctx().State(), StateActive)

	// idempotent
	assert.NilError(t, session.Rollback())
	assert.Equal(t, inst.Get("name"), "foo")
}

func TestRollbackIsInverse(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})
	for _, name := range []string{"a", "b", "c"} {
		_, err := session.Insert("items", map[string]any{"name": name})
		assert.NilError(t, err)
	}
	assert.NilError(t, session.Commit())
	before := committedNames(t, s)

	_, err := session.Insert("items", map[string]any{"name": "d"})
	assert.NilError(t, err)
	_, err = session.Update("items", 1, map[string]any{"name": "z"})
	assert.NilError(t, err)
	assert.NilError(t, session.Delete("items", 2))

	res, err := session.Execute(query.Query{Table: "items"})
	assert.NilError(t, err)
	assert.DeepEqual(t, res.Keys, []any{int64(1), int64(3), int64(4)})

	assert.NilError(t, session.Rollback())
	res, err = session.Execute(query.Query{Table: "items"})
	assert.NilError(t, err)
	assert.DeepEqual(t, res.Keys, []any{int64(1), int64(2), int64(3)})
	assert.DeepEqual(t, committedNames(t, s), before)

	// the rolled back key is not reused
	inst, err := session.Insert("items", map[string]any{"name": "e"})
	assert.NilError(t, err)
	assert.Equal(t, inst.Key(), int64(5))
}

func TestReadYourWrites(t *testing.T) {
	s := newTestSchema(t)
	writer := NewSession(s, Options{})
	reader := NewSession(s, Options{})

	_, err := writer.Insert("items", map[string]any{"name": "staged"})
	assert.NilError(t, err)

	q := query.Query{Table: "items", Where: where(expr.Eq(expr.Col("name"), expr.Lit("staged")))}
	res, err := writer.Execute(q)
	assert.NilError(t, err)
	assert.Equal(t, len(res.Keys), 1)

	res, err = reader.Execute(q)
	assert.NilError(t, err)
	assert.Equal(t, len(res.Keys), 0)

	inst, err := reader.Get("items", 1)
	assert.NilError(t, err)
	assert.Assert(t, inst == nil)

	assert.NilError(t, writer.Commit())
	res, err = reader.Execute(q)
	assert.NilError(t, err)
	assert.Equal(t, len(res.Keys), 1)
}

func TestUpdateAndDeleteWhere(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})
	for _, name := range []string{"foo", "baz", "qux"} {
		_, err := session.Insert("items", map[string]any{"name": name})
		assert.NilError(t, err)
	}
	assert.NilError(t, session.Commit())

	n, err := session.UpdateWhere("items", where(expr.Eq(expr.Col("id"), expr.Lit(1))), map[string]any{"name": "bar"})
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
	assert.NilError(t, session.Commit())

	inst, err := session.Get("items", 1)
	assert.NilError(t, err)
	assert.Equal(t, inst.Get("name"), "bar")

	n, err = session.DeleteWhere("items", where(expr.Lt(expr.Col("id"), expr.Lit(3))))
	assert.NilError(t, err)
	assert.Equal(t, n, 2)
	assert.NilError(t, session.Commit())

	assert.DeepEqual(t, committedNames(t, s), []any{"qux"})
	assert.Assert(t, !inst.Exists())
	assert.Assert(t, inst.Get("name") == nil)

	t.Run("index follows updates", func(t *testing.T) {
		q := query.Query{Table: "items", Where: where(expr.Eq(expr.Col("name"), expr.Lit("qux")))}
		n, err := session.UpdateWhere("items", q.Where, map[string]any{"name": "quux"})
		assert.NilError(t, err)
		assert.Equal(t, n, 1)
		assert.NilError(t, session.Commit())

		res, err := session.Execute(q)
		assert.NilError(t, err)
		assert.Equal(t, len(res.Keys), 0)
		res, err = session.Execute(query.Query{Table: "items", Where: where(expr.Eq(expr.Col("name"), expr.Lit("quux")))})
		assert.NilError(t, err)
		assert.Equal(t, res.Plan.Index, "name")
		assert.DeepEqual(t, res.Keys, []any{int64(3)})
	})

	t.Run("failed statement stages nothing", func(t *testing.T) {
		s := newTestSchema(t)
		session := NewSession(s, Options{})
		for _, name := range []string{"a", "b"} {
			_, err := session.Insert("items", map[string]any{"name": name})
			assert.NilError(t, err)
		}
		assert.NilError(t, session.Commit())

		// the key change is valid for row 1 and rejected for row 2
		n, err := session.UpdateWhere("items", where(expr.Lt(expr.Col("id"), expr.Lit(3))), map[string]any{"id": 1, "name": "x"})
		assert.Assert(t, dberr.InvalidValue.Is(err))
		assert.Equal(t, n, 0)
		assert.Equal(t, session.Pending(), 0)

		inst, err := session.Get("items", 1)
		assert.NilError(t, err)
		assert.Equal(t, inst.Get("name"), "a")

		assert.NilError(t, session.Commit())
		assert.DeepEqual(t, committedNames(t, s), []any{"a", "b"})
	})
}

func TestMerge(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})

	inst, err := session.Insert("items", map[string]any{"id": 7, "name": "seven"})
	assert.NilError(t, err)
	assert.NilError(t, session.Commit())

	merged, err := session.Merge("items", map[string]any{"id": 7, "name": "SEVEN"})
	assert.NilError(t, err)
	assert.Assert(t, merged == inst)
	assert.Equal(t, inst.Get("name"), "SEVEN")

	created, err := session.Merge("items", map[string]any{"name": "new"})
	assert.NilError(t, err)
	assert.Equal(t, created.Key(), int64(8))

	created, err = session.Merge("tags", map[string]any{"slug": "go", "label": "Go"})
	assert.NilError(t, err)
	assert.Equal(t, created.Key(), "go")

	assert.NilError(t, session.Commit())
	assert.DeepEqual(t, committedNames(t, s), []any{"SEVEN", "new"})
}

func TestFindIdentity(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})
	a, err := session.Insert("items", map[string]any{"name": "a"})
	assert.NilError(t, err)
	assert.NilError(t, session.Commit())

	found, err := session.Find(query.Query{Table: "items"})
	assert.NilError(t, err)
	assert.Equal(t, len(found), 1)
	assert.Assert(t, found[0] == a)

	_, err = session.Find(query.Query{Table: "items", Aggregates: []query.Aggregation{{Kind: query.AggCount}}})
	assert.Assert(t, dberr.UnsupportedExpression.Is(err))
}

func TestStagingErrors(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})
	_, err := session.Insert("items", map[string]any{"id": 1, "name": "a"})
	assert.NilError(t, err)

	t.Run("duplicate key keeps the transaction active", func(t *testing.T) {
		_, err := session.Insert("items", map[string]any{"id": 1, "name": "b"})
		assert.Assert(t, dberr.DuplicateKey.Is(err))
		assert.Equal(t, session.Pending(), 1)
	})

	t.Run("missing string key", func(t *testing.T) {
		_, err := session.Insert("tags", map[string]any{"label": "x"})
		assert.Assert(t, dberr.MissingPrimaryKey.Is(err))
	})

	t.Run("unknown table and column", func(t *testing.T) {
		_, err := session.Insert("nope", map[string]any{})
		assert.Assert(t, dberr.UnknownTable.Is(err))
		_, err = session.Insert("items", map[string]any{"nope": 1})
		assert.Assert(t, dberr.UnknownColumn.Is(err))
	})

	t.Run("missing rows", func(t *testing.T) {
		_, err := session.Update("items", 42, map[string]any{"name": "x"})
		assert.Assert(t, dberr.NotFound.Is(err))
		assert.Assert(t, dberr.NotFound.Is(session.Delete("items", 42)))
	})

	t.Run("primary key cannot change", func(t *testing.T) {
		_, err := session.Update("items", 1, map[string]any{"id": 2})
		assert.Assert(t, dberr.InvalidValue.Is(err))
	})

	assert.NilError(t, session.Commit())
	assert.DeepEqual(t, committedNames(t, s), []any{"a"})
}

func TestCommitConflict(t *testing.T) {
	s := newTestSchema(t)
	m := metrics.New()
	first := NewSession(s, Options{Metrics: m})
	second := NewSession(s, Options{Metrics: m})

	_, err := first.Insert("tags", map[string]any{"slug": "go"})
	assert.NilError(t, err)
	_, err = second.Insert("tags", map[string]any{"slug": "rust"})
	assert.NilError(t, err)
	_, err = second.Insert("tags", map[string]any{"slug": "go"})
	assert.NilError(t, err)

	assert.NilError(t, first.Commit())
	err = second.Commit()
	assert.Assert(t, dberr.DuplicateKey.Is(err))

	// nothing from the failed commit was applied and its work is kept
	table, _ := s.Table("tags")
	assert.Equal(t, table.Rows.Len(), 1)
	assert.Equal(t, second.Pending(), 2)
	assert.NilError(t, second.Rollback())
}

func TestClose(t *testing.T) {
	s := newTestSchema(t)
	session := NewSession(s, Options{})
	inst, err := session.Insert("items", map[string]any{"name": "abandoned"})
	assert.NilError(t, err)

	assert.NilError(t, session.Close())
	assert.Assert(t, session.Closed())
	assert.DeepEqual(t, committedNames(t, s), []any{})

	_, err = session.Insert("items", map[string]any{"name": "late"})
	assert.Assert(t, dberr.SessionClosed.Is(err))
	assert.Assert(t, dberr.SessionClosed.Is(session.Commit()))
	assert.Assert(t, dberr.SessionClosed.Is(inst.Set("name", "x")))
	assert.NilError(t, session.Rollback())
	assert.NilError(t, session.Close())
}
