// Package memdb is an in-memory relational storage and query engine. An
// Engine holds tables, their rows and indexes; sessions stage inserts,
// updates and deletes and apply them atomically on commit. Nothing is
// persisted: disposing the engine drops every row.
package memdb

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/internal/metrics"
	"github.com/tobsdb/memdb/internal/query"
	"github.com/tobsdb/memdb/internal/transaction"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
	"golang.org/x/sync/semaphore"
)

// DialectName identifies this engine to the host ORM.
const DialectName = "memory"

type (
	Table     = builder.Table
	TableDef  = builder.TableDef
	ColumnDef = builder.ColumnDef
	Row       = builder.Row
	FieldType = types.FieldType

	Session  = transaction.Session
	Instance = transaction.Instance

	Expr        = expr.Expr
	Query       = query.Query
	Result      = query.Result
	Aggregation = query.Aggregation
	OrderBy     = query.OrderBy
)

const (
	TypeInt     = types.FieldTypeInt
	TypeFloat   = types.FieldTypeFloat
	TypeString  = types.FieldTypeString
	TypeBool    = types.FieldTypeBool
	TypeDate    = types.FieldTypeDate
	TypeDecimal = types.FieldTypeDecimal
	TypeJSON    = types.FieldTypeJSON
	TypeBytes   = types.FieldTypeBytes
)

var (
	ErrDuplicateKey          = dberr.DuplicateKey
	ErrMissingPrimaryKey     = dberr.MissingPrimaryKey
	ErrUnsupportedExpression = dberr.UnsupportedExpression
	ErrUnknownTable          = dberr.UnknownTable
	ErrUnknownColumn         = dberr.UnknownColumn
	ErrTableExists           = dberr.TableExists
	ErrInvalidValue          = dberr.InvalidValue
	ErrNotFound              = dberr.NotFound
	ErrSessionClosed         = dberr.SessionClosed
	ErrEngineDisposed        = dberr.EngineDisposed
)

type LogOptions struct {
	Should_log      bool
	Show_debug_logs bool
}

type Options struct {
	Log LogOptions
	// MaxConcurrency bounds how many async calls run at once across the
	// engine. <= 0 uses GOMAXPROCS.
	MaxConcurrency int64
}

type Engine struct {
	Locker   sync.RWMutex
	schema   *builder.Schema
	metrics  *metrics.Metrics
	pool     *semaphore.Weighted
	disposed atomic.Bool
}

func New(opts Options) *Engine {
	if opts.Log.Should_log {
		if opts.Log.Show_debug_logs {
			pkg.SetLogLevel(pkg.LogLevelDebug)
		} else {
			pkg.SetLogLevel(pkg.LogLevelErrOnly)
		}
	} else {
		pkg.SetLogLevel(pkg.LogLevelNone)
	}

	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = int64(runtime.GOMAXPROCS(0))
	}
	return &Engine{
		schema:  builder.NewSchema(),
		metrics: metrics.New(),
		pool:    semaphore.NewWeighted(opts.MaxConcurrency),
	}
}

func (e *Engine) GetLocker() *sync.RWMutex { return &e.Locker }

func (e *Engine) alive() error {
	if e.disposed.Load() {
		return dberr.EngineDisposed.New()
	}
	return nil
}

func (e *Engine) Dialect() string { return DialectName }

func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

func (e *Engine) DefineTable(def TableDef) (*Table, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	return e.schema.DefineTable(def)
}

// DefineSchema registers the tables declared in the $TABLE schema DSL.
func (e *Engine) DefineSchema(schema_data string) ([]*Table, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	return e.schema.DefineSchema(schema_data)
}

func (e *Engine) CreateIndex(table, column string) error {
	if err := e.alive(); err != nil {
		return err
	}
	return e.schema.CreateIndex(table, column)
}

func (e *Engine) Table(name string) (*Table, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	return e.schema.Table(name)
}

func (e *Engine) TableNames() []string {
	return e.schema.TableNames()
}

// Session starts a session with an active unit of work.
func (e *Engine) Session() (*Session, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	return transaction.NewSession(e.schema, transaction.Options{
		Metrics: e.metrics,
		Alive:   e.alive,
	}), nil
}

// Dispose drops every table and row. Sessions still open fail their next
// operation with EngineDisposed. Disposing twice is a no-op.
func (e *Engine) Dispose() {
	var first bool
	pkg.LockWrap(e, func() {
		first = e.disposed.CompareAndSwap(false, true)
	})
	if !first {
		return
	}
	e.schema.Clear()
	pkg.InfoLog("engine disposed")
}
