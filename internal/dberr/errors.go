// Package dberr holds the error kinds surfaced by the engine. Callers test
// for a kind with Kind.Is; kinds are never wrapped so the check holds.
package dberr

import "gopkg.in/src-d/go-errors.v1"

var (
	DuplicateKey          = errors.NewKind("duplicate primary key %v for table %s")
	MissingPrimaryKey     = errors.NewKind("missing primary key %s for table %s")
	UnsupportedExpression = errors.NewKind("unsupported expression: %s")
	UnknownTable          = errors.NewKind("table %s not found")
	UnknownColumn         = errors.NewKind("column %s not found in table %s")
	TableExists           = errors.NewKind("table %s already exists")
	InvalidValue          = errors.NewKind("invalid value %v for %s column %s: %s")
	InvalidSchema         = errors.NewKind("invalid schema: %s")
	NotFound              = errors.NewKind("row %v not found in table %s")
	SessionClosed         = errors.NewKind("session is closed")
	EngineDisposed        = errors.NewKind("engine has been disposed")
)

var names = []struct {
	name string
	kind *errors.Kind
}{
	{"duplicate_key", DuplicateKey},
	{"missing_primary_key", MissingPrimaryKey},
	{"unsupported_expression", UnsupportedExpression},
	{"unknown_table", UnknownTable},
	{"unknown_column", UnknownColumn},
	{"table_exists", TableExists},
	{"invalid_value", InvalidValue},
	{"invalid_schema", InvalidSchema},
	{"not_found", NotFound},
	{"session_closed", SessionClosed},
	{"engine_disposed", EngineDisposed},
}

// Name returns a stable name for the kind of err, or "internal" for
// errors that are not one of the kinds above.
func Name(err error) string {
	for _, n := range names {
		if n.kind.Is(err) {
			return n.name
		}
	}
	return "internal"
}
