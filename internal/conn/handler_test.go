package conn_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/tobsdb/memdb"
	"github.com/tobsdb/memdb/internal/auth"
	. "github.com/tobsdb/memdb/internal/conn"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/expr"
	"gotest.tools/assert"
)

const testSchema = `
$TABLE a {
    id Int    key(primary)
    b  Int    index(true)
    c  String
}
`

func reqEncode(v map[string]any) []byte {
	buf, _ := json.Marshal(v)
	return buf
}

func where(e expr.Expr) *expr.Expr { return &e }

func newTestCtx(t *testing.T, role auth.UserRole) *ConnCtx {
	engine := memdb.New(memdb.Options{})
	_, err := engine.DefineSchema(testSchema)
	assert.NilError(t, err)
	user, err := auth.NewUser("test", "test", role)
	assert.NilError(t, err)
	ctx, err := NewConnCtx(engine, user)
	assert.NilError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func newPopulatedTestCtx(t *testing.T, n int) *ConnCtx {
	ctx := newTestCtx(t, auth.UserRoleAdmin)
	for i := 1; i <= n; i++ {
		res := CreateReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"b": i, "c": fmt.Sprint(i % 2)}}))
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	}
	return ctx
}

func TestCreateReqHandler(t *testing.T) {
	t.Run("table not found", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		res := CreateReqHandler(ctx, reqEncode(map[string]any{"table": "b", "data": map[string]any{"a": 1}}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})

	t.Run("simple create", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		res := CreateReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"b": 1}}))
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
		assert.Equal(t, res.Message, "Created new row in table a")
		assert.Equal(t, res.Data.(memdb.Row).Get("id"), int64(1))
	})

	t.Run("duplicate error", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		raw := reqEncode(map[string]any{"table": "a", "data": map[string]any{"id": 1}})
		CreateReqHandler(ctx, raw)
		res := CreateReqHandler(ctx, raw)
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
		assert.ErrorContains(t, fmt.Errorf("%s", res.Message), "duplicate primary key")
	})

	t.Run("invalid value", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		res := CreateReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"b": "not a number"}}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("bad json", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		res := CreateReqHandler(ctx, []byte("{"))
		assert.Equal(t, res.Status, http.StatusBadRequest)
	})

	t.Run("integers past 2^53 keep their precision", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		const big int64 = 1<<53 + 1
		res := CreateReqHandler(ctx, []byte(`{"table": "a", "data": {"id": 9007199254740993, "b": 9007199254740993}}`))
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
		assert.Equal(t, res.Data.(memdb.Row).Get("id"), big)
		assert.Equal(t, res.Data.(memdb.Row).Get("b"), big)

		res = FindReqHandler(ctx, []byte(`{"table": "a", "where": {"id": 9007199254740993}}`))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)

		res = FindManyReqHandler(ctx, []byte(`{"table": "a", "where": {"kind": "compare", "op": "=", "args": [{"kind": "column", "name": "b"}, {"kind": "literal", "value": 9007199254740992}]}}`))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, len(res.Data.([]memdb.Row)), 0)
	})
}

func TestFindReqHandler(t *testing.T) {
	ctx := newPopulatedTestCtx(t, 10)

	t.Run("simple find", func(t *testing.T) {
		res := FindReqHandler(ctx, reqEncode(map[string]any{"table": "a", "where": map[string]any{"id": 5}}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, res.Data.(memdb.Row).Get("b"), int64(5))
	})

	t.Run("other fields must match", func(t *testing.T) {
		res := FindReqHandler(ctx, reqEncode(map[string]any{"table": "a", "where": map[string]any{"id": 5, "b": 6}}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})

	t.Run("not found", func(t *testing.T) {
		res := FindReqHandler(ctx, reqEncode(map[string]any{"table": "a", "where": map[string]any{"id": 100}}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})

	t.Run("missing primary key", func(t *testing.T) {
		res := FindReqHandler(ctx, reqEncode(map[string]any{"table": "a", "where": map[string]any{"b": 5}}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})
}

func TestFindManyReqHandler(t *testing.T) {
	ctx := newPopulatedTestCtx(t, 10)

	res := FindManyReqHandler(ctx, reqEncode(map[string]any{
		"table":   "a",
		"where":   where(expr.Between(expr.Col("b"), expr.Lit(3), expr.Lit(8))),
		"orderBy": []map[string]any{{"column": "b", "desc": true}},
		"take":    2,
		"skip":    1,
	}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	rows := res.Data.([]memdb.Row)
	assert.Equal(t, len(rows), 2)
	assert.Equal(t, rows[0].Get("b"), int64(7))
	assert.Equal(t, rows[1].Get("b"), int64(6))

	t.Run("unsupported expression", func(t *testing.T) {
		res := FindManyReqHandler(ctx, []byte(`{"table": "a", "where": {"kind": "regexp"}}`))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})
}

func TestUpdateAndDeleteManyReqHandler(t *testing.T) {
	ctx := newPopulatedTestCtx(t, 10)

	res := UpdateManyReqHandler(ctx, reqEncode(map[string]any{
		"table": "a",
		"where": where(expr.Eq(expr.Col("c"), expr.Lit("1"))),
		"data":  map[string]any{"c": "odd"},
	}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, res.Data, 5)

	res = DeleteManyReqHandler(ctx, reqEncode(map[string]any{
		"table": "a",
		"where": where(expr.Lt(expr.Col("id"), expr.Lit(3))),
	}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, res.Data, 2)

	res = FindManyReqHandler(ctx, reqEncode(map[string]any{
		"table": "a",
		"where": where(expr.Eq(expr.Col("c"), expr.Lit("odd"))),
	}))
	assert.Equal(t, len(res.Data.([]memdb.Row)), 4)
}

func TestMergeReqHandler(t *testing.T) {
	ctx := newPopulatedTestCtx(t, 2)

	res := MergeReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"id": 2, "c": "merged"}}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, res.Data.(memdb.Row).Get("b"), int64(2))
	assert.Equal(t, res.Data.(memdb.Row).Get("c"), "merged")

	res = MergeReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"c": "new"}}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, res.Data.(memdb.Row).Get("id"), int64(3))
}

func TestAggregateReqHandler(t *testing.T) {
	ctx := newPopulatedTestCtx(t, 10)

	res := AggregateReqHandler(ctx, reqEncode(map[string]any{
		"table":      "a",
		"aggregates": []map[string]any{{"kind": "count"}, {"kind": "sum", "column": "b"}},
		"groupBy":    []string{"c"},
	}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	rows := res.Data.([]memdb.Row)
	assert.Equal(t, len(rows), 2)
	assert.Equal(t, rows[0].Get("c"), "0")
	assert.Equal(t, rows[0].Get("count"), int64(5))
	assert.Equal(t, rows[0].Get("sum_b"), int64(2+4+6+8+10))

	res = AggregateReqHandler(ctx, reqEncode(map[string]any{"table": "a"}))
	assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
}

func TestTransactionReqHandlers(t *testing.T) {
	ctx := newTestCtx(t, auth.UserRoleAdmin)
	other, err := NewConnCtx(ctx.Engine, ctx.User)
	assert.NilError(t, err)
	defer other.Close()

	count := func(c *ConnCtx) int {
		res := FindManyReqHandler(c, reqEncode(map[string]any{"table": "a"}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		return len(res.Data.([]memdb.Row))
	}

	res := BeginTransactionReqHandler(ctx)
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Assert(t, ctx.InTransaction())
	res = BeginTransactionReqHandler(ctx)
	assert.Equal(t, res.Status, http.StatusConflict, res.Message)

	CreateReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"b": 1}}))
	assert.Equal(t, count(ctx), 1)
	assert.Equal(t, count(other), 0)

	res = RollbackTransactionReqHandler(ctx)
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, count(ctx), 0)

	BeginTransactionReqHandler(ctx)
	CreateReqHandler(ctx, reqEncode(map[string]any{"table": "a", "data": map[string]any{"b": 2}}))
	res = CommitTransactionReqHandler(ctx)
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Assert(t, !ctx.InTransaction())
	assert.Equal(t, count(other), 1)

	res = CommitTransactionReqHandler(ctx)
	assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
}

func TestActionHandler(t *testing.T) {
	t.Run("read only user", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleReadOnly)
		res := ActionHandler(ctx, RequestActionCreate, reqEncode(map[string]any{"table": "a", "data": map[string]any{}}))
		assert.Equal(t, res.Status, http.StatusForbidden, res.Message)

		res = ActionHandler(ctx, RequestActionFindMany, reqEncode(map[string]any{"table": "a"}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
	})

	t.Run("define schema needs admin", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleReadWrite)
		raw := reqEncode(map[string]any{"schema": "$TABLE z {\n id Int key(primary)\n}"})
		res := ActionHandler(ctx, RequestActionDefineSchema, raw)
		assert.Equal(t, res.Status, http.StatusForbidden, res.Message)

		ctx = newTestCtx(t, auth.UserRoleAdmin)
		res = ActionHandler(ctx, RequestActionDefineSchema, raw)
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
		res = ActionHandler(ctx, RequestActionDefineSchema, raw)
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("unknown action", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		res := ActionHandler(ctx, "dropDatabase", nil)
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("disposed engine", func(t *testing.T) {
		ctx := newTestCtx(t, auth.UserRoleAdmin)
		ctx.Engine.Dispose()
		res := ActionHandler(ctx, RequestActionFindMany, reqEncode(map[string]any{"table": "a"}))
		assert.Equal(t, res.Status, http.StatusGone, res.Message)
	})
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, ErrorStatus(dberr.DuplicateKey.New(1, "a")), http.StatusConflict)
	assert.Equal(t, ErrorStatus(dberr.UnknownTable.New("a")), http.StatusNotFound)
	assert.Equal(t, ErrorStatus(fmt.Errorf("boom")), http.StatusInternalServerError)
}
