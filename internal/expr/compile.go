package expr

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/types"
)

// tri is a three-valued truth value.
type tri int8

const (
	triFalse tri = iota
	triTrue
	triUnknown
)

func triOf(b bool) tri {
	if b {
		return triTrue
	}
	return triFalse
}

func (t tri) not() tri {
	switch t {
	case triTrue:
		return triFalse
	case triFalse:
		return triTrue
	}
	return triUnknown
}

type triFunc func(row builder.Row) tri

type valueFunc func(row builder.Row) any

// operand is a compiled value-producing node.
type operand struct {
	eval valueFunc
	// converts a literal compared against this operand, nil when none applies
	coerce func(any) any

	literal bool
	value   any
}

func (o *operand) setLiteral(v any) {
	o.value = v
	o.eval = func(builder.Row) any { return v }
}

// coerceAgainst converts literal sides to the representation of the
// opposite side.
func coerceAgainst(a, b *operand) {
	if a.literal && b.coerce != nil {
		a.setLiteral(b.coerce(a.value))
	}
	if b.literal && a.coerce != nil {
		b.setLiteral(a.coerce(b.value))
	}
}

// Predicate is a compiled filter.
type Predicate struct {
	Expr Expr
	eval triFunc
}

// Matches reports whether row satisfies the predicate. Unknown results, as
// produced by comparisons with null, do not match.
func (p *Predicate) Matches(row builder.Row) bool {
	if p == nil {
		return true
	}
	return p.eval(row) == triTrue
}

// Compile checks e against table and returns its predicate.
func Compile(e Expr, table *builder.Table) (*Predicate, error) {
	c := compiler{table: table}
	eval, err := c.predicate(e)
	if err != nil {
		return nil, err
	}
	return &Predicate{Expr: e, eval: eval}, nil
}

type compiler struct {
	table *builder.Table
}

func unsupported(format string, args ...any) error {
	return dberr.UnsupportedExpression.New(fmt.Sprintf(format, args...))
}

func (c *compiler) args(e Expr, n int) error {
	if len(e.Args) != n {
		return unsupported("%s expects %d operands, got %d", e.Kind, n, len(e.Args))
	}
	return nil
}

func (c *compiler) predicate(e Expr) (triFunc, error) {
	switch e.Kind {
	case KindCompare:
		return c.compare(e)
	case KindBetween:
		return c.between(e)
	case KindIn:
		return c.in(e)
	case KindIs:
		return c.is(e)
	case KindAnd:
		return c.and(e)
	case KindOr:
		return c.or(e)
	case KindNot:
		if err := c.args(e, 1); err != nil {
			return nil, err
		}
		inner, err := c.predicate(e.Args[0])
		if err != nil {
			return nil, err
		}
		return func(row builder.Row) tri { return inner(row).not() }, nil
	case KindLike:
		return c.like(e)
	case KindColumn, KindLiteral, KindFunc:
		// a bare value filters on its truthiness
		val, err := c.operand(e)
		if err != nil {
			return nil, err
		}
		return func(row builder.Row) tri { return truthy(val.eval(row)) }, nil
	}
	return nil, unsupported("unknown expression kind %q", e.Kind)
}

func truthy(v any) tri {
	switch v := v.(type) {
	case nil:
		return triUnknown
	case bool:
		return triOf(v)
	}
	if n, err := cast.ToFloat64E(v); err == nil {
		return triOf(n != 0)
	}
	return triFalse
}

func (c *compiler) operand(e Expr) (*operand, error) {
	switch e.Kind {
	case KindColumn:
		field, err := c.table.Field(e.Name)
		if err != nil {
			return nil, err
		}
		name, field_type := e.Name, field.BuiltinType
		return &operand{
			eval:   func(row builder.Row) any { return row.Get(name) },
			coerce: func(v any) any { return types.CoerceLiteral(field_type, v) },
		}, nil
	case KindLiteral:
		o := &operand{literal: true}
		o.setLiteral(e.Value)
		return o, nil
	case KindFunc:
		return c.function(e)
	}
	return nil, unsupported("%s cannot be used as a value", e.Kind)
}

func compareOp(op Op) (func(res int) bool, error) {
	switch op {
	case OpEq:
		return func(res int) bool { return res == 0 }, nil
	case OpNe:
		return func(res int) bool { return res != 0 }, nil
	case OpLt:
		return func(res int) bool { return res < 0 }, nil
	case OpGt:
		return func(res int) bool { return res > 0 }, nil
	case OpLe:
		return func(res int) bool { return res <= 0 }, nil
	case OpGe:
		return func(res int) bool { return res >= 0 }, nil
	}
	return nil, unsupported("unknown operator %q", op)
}

func (c *compiler) compare(e Expr) (triFunc, error) {
	if err := c.args(e, 2); err != nil {
		return nil, err
	}
	test, err := compareOp(e.Op)
	if err != nil {
		return nil, err
	}
	left, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	right, err := c.operand(e.Args[1])
	if err != nil {
		return nil, err
	}
	coerceAgainst(left, right)

	return func(row builder.Row) tri {
		res, ok := types.Compare(left.eval(row), right.eval(row))
		if !ok {
			return triUnknown
		}
		return triOf(test(res))
	}, nil
}

func (c *compiler) between(e Expr) (triFunc, error) {
	if err := c.args(e, 3); err != nil {
		return nil, err
	}
	x, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	lower, err := c.operand(e.Args[1])
	if err != nil {
		return nil, err
	}
	upper, err := c.operand(e.Args[2])
	if err != nil {
		return nil, err
	}
	coerceAgainst(x, lower)
	coerceAgainst(x, upper)

	negated := e.Negated
	return func(row builder.Row) tri {
		v := x.eval(row)
		res := triTrue
		if cmp, ok := types.Compare(v, lower.eval(row)); !ok {
			res = triUnknown
		} else if cmp < 0 {
			res = triFalse
		}
		if res != triFalse {
			if cmp, ok := types.Compare(v, upper.eval(row)); !ok {
				res = triUnknown
			} else if cmp > 0 {
				res = triFalse
			}
		}
		if negated {
			return res.not()
		}
		return res
	}, nil
}

func (c *compiler) in(e Expr) (triFunc, error) {
	if len(e.Args) == 0 {
		return nil, unsupported("in expects an operand")
	}
	x, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	values := make([]*operand, 0, len(e.Args)-1)
	for _, arg := range e.Args[1:] {
		v, err := c.operand(arg)
		if err != nil {
			return nil, err
		}
		coerceAgainst(x, v)
		values = append(values, v)
	}

	negated := e.Negated
	return func(row builder.Row) tri {
		res := triFalse
		if len(values) > 0 {
			v := x.eval(row)
			for _, candidate := range values {
				cmp, ok := types.Compare(v, candidate.eval(row))
				if !ok {
					res = triUnknown
					continue
				}
				if cmp == 0 {
					res = triTrue
					break
				}
			}
		}
		if negated {
			return res.not()
		}
		return res
	}, nil
}

func (c *compiler) is(e Expr) (triFunc, error) {
	if err := c.args(e, 2); err != nil {
		return nil, err
	}
	left, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	right, err := c.operand(e.Args[1])
	if err != nil {
		return nil, err
	}
	coerceAgainst(left, right)

	negated := e.Negated
	return func(row builder.Row) tri {
		same := types.Equal(left.eval(row), right.eval(row))
		return triOf(same != negated)
	}, nil
}

func (c *compiler) children(e Expr) ([]triFunc, error) {
	if len(e.Args) == 0 {
		return nil, unsupported("%s expects at least one operand", e.Kind)
	}
	funcs := make([]triFunc, 0, len(e.Args))
	for _, arg := range e.Args {
		f, err := c.predicate(arg)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, f)
	}
	return funcs, nil
}

func (c *compiler) and(e Expr) (triFunc, error) {
	funcs, err := c.children(e)
	if err != nil {
		return nil, err
	}
	return func(row builder.Row) tri {
		res := triTrue
		for _, f := range funcs {
			switch f(row) {
			case triFalse:
				return triFalse
			case triUnknown:
				res = triUnknown
			}
		}
		return res
	}, nil
}

func (c *compiler) or(e Expr) (triFunc, error) {
	funcs, err := c.children(e)
	if err != nil {
		return nil, err
	}
	return func(row builder.Row) tri {
		res := triFalse
		for _, f := range funcs {
			switch f(row) {
			case triTrue:
				return triTrue
			case triUnknown:
				res = triUnknown
			}
		}
		return res
	}, nil
}
