package dberr_test

import (
	"fmt"
	"testing"

	. "github.com/tobsdb/memdb/internal/dberr"
	"gotest.tools/assert"
)

func TestName(t *testing.T) {
	for _, tc := range []struct {
		err  error
		name string
	}{
		{DuplicateKey.New(1, "items"), "duplicate_key"},
		{MissingPrimaryKey.New("id", "items"), "missing_primary_key"},
		{UnsupportedExpression.New("regexp"), "unsupported_expression"},
		{UnknownTable.New("items"), "unknown_table"},
		{UnknownColumn.New("x", "items"), "unknown_column"},
		{InvalidValue.New("x", "Int", "id", "not a number"), "invalid_value"},
		{SessionClosed.New(), "session_closed"},
		{fmt.Errorf("other"), "internal"},
		{nil, "internal"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, Name(tc.err), tc.name)
		})
	}

	assert.Equal(t, DuplicateKey.New(1, "items").Error(), "duplicate primary key 1 for table items")
}
