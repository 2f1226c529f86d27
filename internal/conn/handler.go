package conn

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/tobsdb/memdb"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/internal/query"
	"github.com/tobsdb/memdb/pkg"
)

type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// don't manually set this. it comes from the client
	ReqId int `json:"__tdb_client_req_id__"`
}

func (r Response) Marshal() []byte {
	buf, err := json.Marshal(r)
	if err != nil {
		pkg.ErrorLog("marshal response", err)
		buf, _ = json.Marshal(NewErrorResponse(http.StatusInternalServerError, err.Error()))
	}
	return buf
}

func NewErrorResponse(status int, err string) Response {
	return Response{Message: err, Status: status}
}

func NewResponse(status int, message string, data any) Response {
	return Response{Data: data, Message: message, Status: status}
}

var error_status = map[string]int{
	"duplicate_key":          http.StatusConflict,
	"table_exists":           http.StatusConflict,
	"missing_primary_key":    http.StatusBadRequest,
	"unsupported_expression": http.StatusBadRequest,
	"invalid_value":          http.StatusBadRequest,
	"invalid_schema":         http.StatusBadRequest,
	"unknown_table":          http.StatusNotFound,
	"unknown_column":         http.StatusNotFound,
	"not_found":              http.StatusNotFound,
	"session_closed":         http.StatusGone,
	"engine_disposed":        http.StatusGone,
}

// ErrorStatus maps an engine error to the status reported to clients.
func ErrorStatus(err error) int {
	if status, ok := error_status[dberr.Name(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func errorResponse(err error) Response {
	return NewErrorResponse(ErrorStatus(err), err.Error())
}

// decode keeps wire numbers as json.Number so integers beyond 2^53 reach
// the engine intact.
func decode(raw []byte, req any) *Response {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(req); err != nil {
		res := NewErrorResponse(http.StatusBadRequest, err.Error())
		return &res
	}
	return nil
}

func values(instances []*memdb.Instance) []memdb.Row {
	rows := make([]memdb.Row, 0, len(instances))
	for _, inst := range instances {
		rows = append(rows, inst.Values())
	}
	return rows
}

type DefineSchemaRequest struct {
	Schema string `json:"schema"`
}

func DefineSchemaReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req DefineSchemaRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	tables, err := ctx.Engine.DefineSchema(req.Schema)
	if err != nil {
		return errorResponse(err)
	}
	names := make([]string, len(tables))
	for i, table := range tables {
		names[i] = table.Name
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Defined %d tables", len(tables)), names)
}

type CreateRequest struct {
	Table string         `json:"table"`
	Data  query.QueryArg `json:"data"`
}

func CreateReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req CreateRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	inst, err := ctx.Session.Insert(req.Table, req.Data)
	if err != nil {
		return errorResponse(err)
	}
	row := inst.Values()
	if err := ctx.finish(); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created new row in table %s", req.Table), row)
}

type FindRequest struct {
	Table string         `json:"table"`
	Where query.QueryArg `json:"where"`
}

// FindReqHandler looks a row up by primary key. Other where fields must
// match too.
func FindReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req FindRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	table, err := ctx.Engine.Table(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if !req.Where.Has(table.PrimaryKey) {
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("findUnique requires the primary key %s", table.PrimaryKey))
	}

	conjuncts := make([]expr.Expr, 0, len(req.Where))
	for col, val := range req.Where {
		conjuncts = append(conjuncts, expr.Eq(expr.Col(col), expr.Lit(val)))
	}
	where := expr.And(conjuncts...)
	found, err := ctx.Session.Find(query.Query{Table: req.Table, Where: &where, Limit: 1})
	if err != nil {
		return errorResponse(err)
	}
	if len(found) == 0 {
		return NewErrorResponse(http.StatusNotFound, "No row found with constraint")
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Found row in table %s", req.Table), found[0].Values())
}

type FindManyRequest struct {
	Table   string          `json:"table"`
	Where   *expr.Expr      `json:"where"`
	OrderBy []query.OrderBy `json:"orderBy"`
	Take    int             `json:"take"`
	Skip    int             `json:"skip"`
}

func FindManyReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req FindManyRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	found, err := ctx.Session.Find(query.Query{
		Table:   req.Table,
		Where:   req.Where,
		OrderBy: req.OrderBy,
		Limit:   req.Take,
		Offset:  req.Skip,
	})
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d rows in table %s", len(found), req.Table), values(found))
}

type UpdateRequest struct {
	Table string         `json:"table"`
	Where *expr.Expr     `json:"where"`
	Data  query.QueryArg `json:"data"`
}

func UpdateManyReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req UpdateRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	n, err := ctx.Session.UpdateWhere(req.Table, req.Where, req.Data)
	if err != nil {
		return errorResponse(err)
	}
	if err := ctx.finish(); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Updated %d rows in table %s", n, req.Table), n)
}

type DeleteRequest struct {
	Table string     `json:"table"`
	Where *expr.Expr `json:"where"`
}

func DeleteManyReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req DeleteRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	n, err := ctx.Session.DeleteWhere(req.Table, req.Where)
	if err != nil {
		return errorResponse(err)
	}
	if err := ctx.finish(); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Deleted %d rows in table %s", n, req.Table), n)
}

type MergeRequest struct {
	Table string         `json:"table"`
	Data  query.QueryArg `json:"data"`
}

func MergeReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req MergeRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	inst, err := ctx.Session.Merge(req.Table, req.Data)
	if err != nil {
		return errorResponse(err)
	}
	row := inst.Values()
	if err := ctx.finish(); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Merged row in table %s", req.Table), row)
}

type AggregateRequest struct {
	Table      string              `json:"table"`
	Where      *expr.Expr          `json:"where"`
	Aggregates []query.Aggregation `json:"aggregates"`
	GroupBy    []string            `json:"groupBy"`
	OrderBy    []query.OrderBy     `json:"orderBy"`
	Take       int                 `json:"take"`
	Skip       int                 `json:"skip"`
}

func AggregateReqHandler(ctx *ConnCtx, raw []byte) Response {
	var req AggregateRequest
	if res := decode(raw, &req); res != nil {
		return *res
	}
	if len(req.Aggregates) == 0 {
		return NewErrorResponse(http.StatusBadRequest, "aggregate requires at least one aggregation")
	}
	res, err := ctx.Session.Execute(query.Query{
		Table:      req.Table,
		Where:      req.Where,
		Aggregates: req.Aggregates,
		GroupBy:    req.GroupBy,
		OrderBy:    req.OrderBy,
		Limit:      req.Take,
		Offset:     req.Skip,
	})
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Aggregated table %s", req.Table), res.Rows)
}

func BeginTransactionReqHandler(ctx *ConnCtx) Response {
	if ctx.inTx {
		return NewErrorResponse(http.StatusConflict, "transaction already in progress")
	}
	ctx.inTx = true
	return NewResponse(http.StatusOK, "Transaction started", ctx.Session.Ctx().ID().String())
}

func CommitTransactionReqHandler(ctx *ConnCtx) Response {
	if !ctx.inTx {
		return NewErrorResponse(http.StatusBadRequest, "no transaction in progress")
	}
	id := ctx.Session.Ctx().ID().String()
	if err := ctx.Session.Commit(); err != nil {
		return errorResponse(err)
	}
	ctx.inTx = false
	return NewResponse(http.StatusOK, "Transaction committed", id)
}

func RollbackTransactionReqHandler(ctx *ConnCtx) Response {
	id := ctx.Session.Ctx().ID().String()
	ctx.Session.Rollback()
	ctx.inTx = false
	return NewResponse(http.StatusOK, "Transaction rolled back", id)
}
