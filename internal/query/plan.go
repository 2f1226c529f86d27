package query

import (
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/internal/types"
)

type accessKind int

const (
	accessEq accessKind = iota
	accessRange
)

// access is one way of narrowing candidates with an index.
type access struct {
	kind     accessKind
	column   string
	pk       bool
	estimate int
	keys     func() []any
}

func better(a, b *access) bool {
	if b == nil {
		return true
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.estimate < b.estimate
}

// chooseAccess picks the narrowest index access among the top-level
// conjuncts of where. nil means a full scan.
func chooseAccess(table *builder.Table, where *expr.Expr) *access {
	if where == nil {
		return nil
	}
	var best *access
	for _, c := range expr.Conjuncts(*where) {
		a := conjunctAccess(table, c)
		if a != nil && better(a, best) {
			best = a
		}
	}
	return best
}

// indexedColumn returns the column of e when it can be served by an index.
func indexedColumn(table *builder.Table, e expr.Expr) (*builder.Field, *builder.Index, bool) {
	if e.Kind != expr.KindColumn {
		return nil, nil, false
	}
	field, err := table.Field(e.Name)
	if err != nil || field.BuiltinType == types.FieldTypeJSON {
		return nil, nil, false
	}
	if e.Name == table.PrimaryKey {
		return field, nil, true
	}
	idx, ok := table.Indexes.Get(e.Name)
	return field, idx, ok
}

// literalFor converts a literal to the stored form of field's values. Only
// literals that convert can be looked up in the index.
func literalFor(field *builder.Field, e expr.Expr) (any, bool) {
	if e.Kind != expr.KindLiteral || e.Value == nil {
		return nil, false
	}
	v, err := field.Normalize(e.Value)
	if err != nil {
		return nil, false
	}
	return v, true
}

func conjunctAccess(table *builder.Table, e expr.Expr) *access {
	switch e.Kind {
	case expr.KindCompare:
		if len(e.Args) != 2 || e.Op == expr.OpNe {
			return nil
		}
		op, col, lit := e.Op, e.Args[0], e.Args[1]
		if col.Kind != expr.KindColumn {
			op, col, lit = op.Flip(), lit, col
		}
		field, idx, ok := indexedColumn(table, col)
		if !ok {
			return nil
		}
		value, ok := literalFor(field, lit)
		if !ok {
			return nil
		}
		if op == expr.OpEq {
			return eqAccess(table, field, idx, []any{value})
		}
		if idx == nil {
			return nil
		}
		var lower, upper builder.Bound
		switch op {
		case expr.OpLt:
			upper = builder.Exclusive(value)
		case expr.OpLe:
			upper = builder.Inclusive(value)
		case expr.OpGt:
			lower = builder.Exclusive(value)
		case expr.OpGe:
			lower = builder.Inclusive(value)
		default:
			return nil
		}
		return rangeAccess(field, idx, lower, upper)
	case expr.KindBetween:
		if e.Negated || len(e.Args) != 3 {
			return nil
		}
		field, idx, ok := indexedColumn(table, e.Args[0])
		if !ok || idx == nil {
			return nil
		}
		lower, ok := literalFor(field, e.Args[1])
		if !ok {
			return nil
		}
		upper, ok := literalFor(field, e.Args[2])
		if !ok {
			return nil
		}
		return rangeAccess(field, idx, builder.Inclusive(lower), builder.Inclusive(upper))
	case expr.KindIn:
		if e.Negated || len(e.Args) == 0 {
			return nil
		}
		field, idx, ok := indexedColumn(table, e.Args[0])
		if !ok {
			return nil
		}
		values := []any{}
		for _, arg := range e.Args[1:] {
			if arg.Kind != expr.KindLiteral {
				return nil
			}
			// null and unconvertible members can never compare equal
			if v, ok := literalFor(field, arg); ok {
				values = append(values, v)
			}
		}
		return eqAccess(table, field, idx, values)
	}
	return nil
}

func eqAccess(table *builder.Table, field *builder.Field, idx *builder.Index, values []any) *access {
	if idx == nil {
		// primary key probe
		keys := []any{}
		for _, v := range values {
			if table.Rows.Has(v) {
				keys = append(keys, v)
			}
		}
		return &access{
			kind: accessEq, column: field.Name, pk: true, estimate: len(keys),
			keys: func() []any { return keys },
		}
	}
	estimate := 0
	for _, v := range values {
		estimate += idx.Count(v)
	}
	return &access{
		kind: accessEq, column: field.Name, estimate: estimate,
		keys: func() []any {
			keys := []any{}
			for _, v := range values {
				keys = append(keys, idx.LookupEq(v)...)
			}
			return keys
		},
	}
}

func rangeAccess(field *builder.Field, idx *builder.Index, lower, upper builder.Bound) *access {
	return &access{
		kind: accessRange, column: field.Name, estimate: idx.CountRange(lower, upper),
		keys: func() []any { return idx.LookupRange(lower, upper) },
	}
}
