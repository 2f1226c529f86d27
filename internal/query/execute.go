package query

import (
	"fmt"
	"slices"

	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
)

// Execute runs q against the committed rows of schema with view's staged
// rows layered on top. view may be nil.
func Execute(schema *builder.Schema, view View, q Query) (*Result, error) {
	table, err := schema.Table(q.Table)
	if err != nil {
		return nil, err
	}
	if err := validate(table, q); err != nil {
		return nil, err
	}

	var predicate *expr.Predicate
	if q.Where != nil {
		predicate, err = expr.Compile(*q.Where, table)
		if err != nil {
			return nil, err
		}
	}

	var overlay Overlay
	if view != nil {
		overlay = view.Overlay(table.Name)
	}

	var (
		rows []builder.Row
		plan Plan
	)
	pkg.RLockWrap(schema, func() {
		rows, plan = candidates(table, chooseAccess(table, q.Where), overlay)
	})
	pkg.DebugLog("query", q.Table, "index", plan.Index, "primary", plan.PrimaryKey, "candidates", plan.Candidates)

	matched := make([]builder.Row, 0, len(rows))
	for _, row := range rows {
		if predicate.Matches(row) {
			matched = append(matched, row)
		}
	}
	sortByKey(table, matched)

	res := &Result{Plan: plan}
	if q.Aggregated() {
		res.Aggregated = true
		res.Rows, err = aggregateRows(table, q, matched)
		if err != nil {
			return nil, err
		}
	} else {
		res.Rows = matched
	}

	sortRows(res.Rows, q.OrderBy)
	res.Rows = window(res.Rows, q.Offset, q.Limit)

	if !res.Aggregated {
		res.Keys = make([]any, len(res.Rows))
		for i, row := range res.Rows {
			res.Keys[i] = table.Key(row)
		}
	}
	return res, nil
}

func validate(table *builder.Table, q Query) error {
	for _, agg := range q.Aggregates {
		switch agg.Kind {
		case AggCount, AggSum, AggMin, AggMax, AggAvg:
		default:
			return dberr.UnsupportedExpression.New(fmt.Sprintf("unknown aggregate %q", agg.Kind))
		}
		if len(agg.Column) == 0 {
			if agg.Kind != AggCount {
				return dberr.UnsupportedExpression.New(fmt.Sprintf("%s needs a column", agg.Kind))
			}
			continue
		}
		if _, err := table.Field(agg.Column); err != nil {
			return err
		}
	}
	for _, col := range q.GroupBy {
		if _, err := table.Field(col); err != nil {
			return err
		}
	}

	if !q.Aggregated() {
		for _, o := range q.OrderBy {
			if _, err := table.Field(o.Column); err != nil {
				return err
			}
		}
		return nil
	}
	// aggregate results can only be ordered by what they report
	reported := pkg.Map[string, bool]{}
	for _, col := range q.GroupBy {
		reported.Set(col, true)
	}
	for _, agg := range q.Aggregates {
		reported.Set(agg.Name(), true)
	}
	for _, o := range q.OrderBy {
		if !reported.Has(o.Column) {
			return dberr.UnknownColumn.New(o.Column, table.Name)
		}
	}
	return nil
}

// candidates gathers the rows the predicate has to be checked against:
// committed rows not shadowed by the overlay, plus the overlay's live rows.
// Must be called with the schema read lock held.
func candidates(table *builder.Table, a *access, overlay Overlay) ([]builder.Row, Plan) {
	rows := []builder.Row{}
	plan := Plan{}

	if a == nil {
		table.Rows.Scan(func(row builder.Row) bool {
			if _, shadowed := overlay[table.Key(row)]; !shadowed {
				rows = append(rows, row)
			}
			return true
		})
	} else {
		plan.PrimaryKey = a.pk
		if !a.pk {
			plan.Index = a.column
		}
		seen := pkg.Map[any, bool]{}
		for _, key := range a.keys() {
			if seen.Has(key) {
				continue
			}
			seen.Set(key, true)
			if _, shadowed := overlay[key]; shadowed {
				continue
			}
			row, ok := table.Rows.Get(key)
			if !ok {
				panic(fmt.Sprintf("index %s.%s references missing key %v", table.Name, a.column, key))
			}
			rows = append(rows, row)
		}
	}

	for _, row := range overlay {
		if row != nil {
			rows = append(rows, row)
		}
	}
	plan.Candidates = len(rows)
	return rows, plan
}

func sortByKey(table *builder.Table, rows []builder.Row) {
	pk := table.PrimaryKey
	slices.SortFunc(rows, func(a, b builder.Row) int {
		return types.Order(a.Get(pk), b.Get(pk))
	})
}

// sortRows orders rows by each OrderBy in turn. Sorting is stable so ties
// keep their primary key order; nulls sort first ascending.
func sortRows(rows []builder.Row, order []OrderBy) {
	if len(order) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b builder.Row) int {
		for _, o := range order {
			c := types.Order(a.Get(o.Column), b.Get(o.Column))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func window(rows []builder.Row, offset, limit int) []builder.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return []builder.Row{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
