package query

import (
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/pkg"
)

type QueryArg = pkg.Map[string, any]

type AggKind string

const (
	AggCount AggKind = "count"
	AggSum   AggKind = "sum"
	AggMin   AggKind = "min"
	AggMax   AggKind = "max"
	AggAvg   AggKind = "avg"
)

// Aggregation computes Kind over Column. A count with no column counts rows.
type Aggregation struct {
	Kind   AggKind `json:"kind"`
	Column string  `json:"column,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Name is the result column the aggregate is reported under.
func (a Aggregation) Name() string {
	if len(a.Label) > 0 {
		return a.Label
	}
	if len(a.Column) == 0 {
		return string(a.Kind)
	}
	return string(a.Kind) + "_" + a.Column
}

type OrderBy struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

type Query struct {
	Table      string        `json:"table"`
	Where      *expr.Expr    `json:"where,omitempty"`
	Aggregates []Aggregation `json:"aggregates,omitempty"`
	GroupBy    []string      `json:"groupBy,omitempty"`
	OrderBy    []OrderBy     `json:"orderBy,omitempty"`
	// Limit <= 0 means no limit
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (q Query) Aggregated() bool {
	return len(q.Aggregates) > 0 || len(q.GroupBy) > 0
}

// Plan records how candidate rows were found.
type Plan struct {
	// indexed column used, empty for a full scan
	Index string
	// the primary key was probed directly
	PrimaryKey bool
	Candidates int
}

func (p Plan) FullScan() bool {
	return len(p.Index) == 0 && !p.PrimaryKey
}

type Result struct {
	// matched rows, or one row per group for aggregate queries
	Rows []builder.Row
	// primary keys of Rows; empty for aggregate queries
	Keys       []any
	Aggregated bool
	Plan       Plan
}

// Scalar returns the first aggregate of the first result row.
func (r *Result) Scalar(q Query) any {
	if len(r.Rows) == 0 || len(q.Aggregates) == 0 {
		return nil
	}
	return r.Rows[0].Get(q.Aggregates[0].Name())
}

// Overlay holds a session's uncommitted rows for one table by primary key.
// A nil row marks a staged delete.
type Overlay = map[any]builder.Row

// View supplies the staged state layered over committed rows.
type View interface {
	Overlay(table string) Overlay
}
