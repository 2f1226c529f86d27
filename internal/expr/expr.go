// Package expr compiles structured filter expressions into predicates
// evaluated against table rows.
package expr

import "fmt"

type Kind string

const (
	KindColumn  Kind = "column"
	KindLiteral Kind = "literal"
	KindCompare Kind = "compare"
	KindBetween Kind = "between"
	KindIn      Kind = "in"
	KindIs      Kind = "is"
	KindAnd     Kind = "and"
	KindOr      Kind = "or"
	KindNot     Kind = "not"
	KindLike    Kind = "like"
	KindFunc    Kind = "func"
)

type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpGt Op = ">"
	OpLe Op = "<="
	OpGe Op = ">="
)

// Flip returns the operator with its operands swapped: a < b is b > a.
func (op Op) Flip() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpGt:
		return OpLt
	case OpLe:
		return OpGe
	case OpGe:
		return OpLe
	}
	return op
}

// Expr is a node of a filter expression.
//
//   - column: Name is the column
//   - literal: Value is the constant
//   - compare: Args[0] Op Args[1]
//   - between: Args[0] between Args[1] and Args[2]
//   - in: Args[0] in Args[1:]
//   - is: Args[0] is Args[1], null-aware
//   - and, or: every Args, left to right
//   - not: Args[0]
//   - like: Args[0] like Args[1]
//   - func: Name(Args...)
//
// Negated applies to between, in, is and like.
type Expr struct {
	Kind    Kind   `json:"kind"`
	Op      Op     `json:"op,omitempty"`
	Negated bool   `json:"negated,omitempty"`
	Name    string `json:"name,omitempty"`
	Value   any    `json:"value,omitempty"`
	Args    []Expr `json:"args,omitempty"`
}

func (e Expr) String() string {
	switch e.Kind {
	case KindColumn:
		return e.Name
	case KindLiteral:
		if s, ok := e.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		if e.Value == nil {
			return "NULL"
		}
		return fmt.Sprint(e.Value)
	case KindCompare:
		if len(e.Args) == 2 {
			return fmt.Sprintf("(%s %s %s)", e.Args[0], e.Op, e.Args[1])
		}
	case KindFunc:
		return fmt.Sprintf("%s%v", e.Name, e.Args)
	}
	not := ""
	if e.Negated {
		not = "not "
	}
	return fmt.Sprintf("%s%s%v", not, e.Kind, e.Args)
}

func Col(name string) Expr { return Expr{Kind: KindColumn, Name: name} }
func Lit(value any) Expr   { return Expr{Kind: KindLiteral, Value: value} }

func Cmp(op Op, left, right Expr) Expr {
	return Expr{Kind: KindCompare, Op: op, Args: []Expr{left, right}}
}

func Eq(left, right Expr) Expr { return Cmp(OpEq, left, right) }
func Ne(left, right Expr) Expr { return Cmp(OpNe, left, right) }
func Lt(left, right Expr) Expr { return Cmp(OpLt, left, right) }
func Gt(left, right Expr) Expr { return Cmp(OpGt, left, right) }
func Le(left, right Expr) Expr { return Cmp(OpLe, left, right) }
func Ge(left, right Expr) Expr { return Cmp(OpGe, left, right) }

func Between(x, lower, upper Expr) Expr {
	return Expr{Kind: KindBetween, Args: []Expr{x, lower, upper}}
}

func NotBetween(x, lower, upper Expr) Expr {
	e := Between(x, lower, upper)
	e.Negated = true
	return e
}

// In builds x in (values...) from literal values.
func In(x Expr, values ...any) Expr {
	args := []Expr{x}
	for _, v := range values {
		args = append(args, Lit(v))
	}
	return Expr{Kind: KindIn, Args: args}
}

func NotIn(x Expr, values ...any) Expr {
	e := In(x, values...)
	e.Negated = true
	return e
}

func Is(x, y Expr) Expr    { return Expr{Kind: KindIs, Args: []Expr{x, y}} }
func IsNot(x, y Expr) Expr { return Expr{Kind: KindIs, Negated: true, Args: []Expr{x, y}} }
func IsNull(x Expr) Expr    { return Is(x, Lit(nil)) }
func IsNotNull(x Expr) Expr { return IsNot(x, Lit(nil)) }

func And(args ...Expr) Expr { return Expr{Kind: KindAnd, Args: args} }
func Or(args ...Expr) Expr  { return Expr{Kind: KindOr, Args: args} }
func Not(x Expr) Expr       { return Expr{Kind: KindNot, Args: []Expr{x}} }

func Like(x Expr, pattern string) Expr {
	return Expr{Kind: KindLike, Args: []Expr{x, Lit(pattern)}}
}

func NotLike(x Expr, pattern string) Expr {
	e := Like(x, pattern)
	e.Negated = true
	return e
}

func Func(name string, args ...Expr) Expr {
	return Expr{Kind: KindFunc, Name: name, Args: args}
}

func Date(x Expr) Expr { return Func(FuncDate, x) }

func JSONExtract(x Expr, path string) Expr {
	return Func(FuncJSONExtract, x, Lit(path))
}

// Conjuncts flattens nested top-level ands.
func Conjuncts(e Expr) []Expr {
	if e.Kind != KindAnd {
		return []Expr{e}
	}
	found := []Expr{}
	for _, arg := range e.Args {
		found = append(found, Conjuncts(arg)...)
	}
	return found
}
