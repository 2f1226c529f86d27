package query

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
)

// Aggregate reduces the column values of rows. count with an empty column
// counts rows; every other kind ignores nulls and returns nil when nothing
// is left to reduce.
func Aggregate(kind AggKind, rows []builder.Row, column string) (any, error) {
	if kind == AggCount {
		if len(column) == 0 {
			return int64(len(rows)), nil
		}
		count := int64(0)
		for _, row := range rows {
			if row.Get(column) != nil {
				count++
			}
		}
		return count, nil
	}

	values := make([]any, 0, len(rows))
	for _, row := range rows {
		if v := row.Get(column); v != nil {
			values = append(values, v)
		}
	}

	switch kind {
	case AggMin, AggMax:
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c := types.Order(v, best)
			if (kind == AggMin && c < 0) || (kind == AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	case AggSum:
		s, err := sum(column, values)
		if err != nil || s == nil {
			return nil, err
		}
		return s.value(), nil
	case AggAvg:
		s, err := sum(column, values)
		if err != nil || s == nil {
			return nil, err
		}
		return s.avg(len(values)), nil
	}
	return nil, dberr.UnsupportedExpression.New(fmt.Sprintf("unknown aggregate %q", kind))
}

type numericSum struct {
	kind int // 0 int, 1 float, 2 decimal
	i    int64
	f    float64
	d    decimal.Decimal
	// integer totals past int64 continue in d
	carried bool
}

func sum(column string, values []any) (*numericSum, error) {
	if len(values) == 0 {
		return nil, nil
	}
	s := &numericSum{}
	for _, v := range values {
		switch v := v.(type) {
		case decimal.Decimal:
			s.kind = 2
			s.d = s.d.Add(v)
		case float64:
			if s.kind < 1 {
				s.kind = 1
			}
			s.f += v
		case float32:
			if s.kind < 1 {
				s.kind = 1
			}
			s.f += float64(v)
		default:
			i, ok := pkg.NumToInt64(v)
			if !ok {
				return nil, dberr.UnsupportedExpression.New(fmt.Sprintf("cannot sum non-numeric column %s (%T)", column, v))
			}
			total := s.i + i
			if (total > s.i) != (i > 0) {
				s.d = s.d.Add(decimal.NewFromInt(s.i)).Add(decimal.NewFromInt(i))
				s.i, s.carried = 0, true
				continue
			}
			s.i = total
		}
	}
	return s, nil
}

func (s *numericSum) total() decimal.Decimal {
	return s.d.Add(decimal.NewFromFloat(s.f)).Add(decimal.NewFromInt(s.i))
}

func (s *numericSum) value() any {
	switch s.kind {
	case 0:
		if s.carried {
			return s.total()
		}
		return s.i
	case 1:
		return s.f + float64(s.i) + s.d.InexactFloat64()
	}
	return s.total()
}

func (s *numericSum) avg(count int) any {
	if s.kind == 2 {
		return s.total().Div(decimal.NewFromInt(int64(count)))
	}
	return (s.f + float64(s.i) + s.d.InexactFloat64()) / float64(count)
}

// aggregateRows reduces rows, already in primary key order, to one row per
// group. Without GroupBy every row forms a single group, even when empty.
func aggregateRows(table *builder.Table, q Query, rows []builder.Row) ([]builder.Row, error) {
	groups := [][]builder.Row{rows}
	if len(q.GroupBy) > 0 {
		groups = groupRows(rows, q.GroupBy)
	}

	res := make([]builder.Row, 0, len(groups))
	for _, group := range groups {
		out := builder.Row{}
		if len(group) > 0 {
			for _, col := range q.GroupBy {
				out.Set(col, group[0].Get(col))
			}
		}
		for _, agg := range q.Aggregates {
			v, err := Aggregate(agg.Kind, group, agg.Column)
			if err != nil {
				return nil, err
			}
			out.Set(agg.Name(), v)
		}
		res = append(res, out)
	}
	return res, nil
}

// groupRows splits rows into runs with equal group values. Groups come out
// ordered by their group values; rows keep their relative order.
func groupRows(rows []builder.Row, by []string) [][]builder.Row {
	order := make([]OrderBy, len(by))
	for i, col := range by {
		order[i] = OrderBy{Column: col}
	}
	sorted := append([]builder.Row{}, rows...)
	sortRows(sorted, order)

	groups := [][]builder.Row{}
	for _, row := range sorted {
		n := len(groups)
		if n > 0 && sameGroup(groups[n-1][0], row, by) {
			groups[n-1] = append(groups[n-1], row)
			continue
		}
		groups = append(groups, []builder.Row{row})
	}
	return groups
}

func sameGroup(a, b builder.Row, by []string) bool {
	for _, col := range by {
		if types.Order(a.Get(col), b.Get(col)) != 0 {
			return false
		}
	}
	return true
}
