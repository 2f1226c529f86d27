package transaction

import (
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
)

// Instance is the single handle a session hands out for a (table, key)
// pair. It holds no values itself: reads resolve through the session's
// staged state, then the committed rows, so a rollback takes effect on
// every holder at once.
type Instance struct {
	session *Session
	table   *builder.Table
	key     any
}

func (inst *Instance) Key() any      { return inst.key }
func (inst *Instance) Table() string { return inst.table.Name }

// Exists reports whether the row is visible to the session.
func (inst *Instance) Exists() bool {
	return inst.session.current(inst.table, inst.key) != nil
}

// Get returns the value of column, nil when the row no longer exists.
func (inst *Instance) Get(column string) any {
	return inst.session.current(inst.table, inst.key).Get(column)
}

// Values returns a copy of the row's current values.
func (inst *Instance) Values() builder.Row {
	row := inst.session.current(inst.table, inst.key)
	if row == nil {
		return nil
	}
	return row.Clone()
}

// Set edits the row in place by staging an update.
func (inst *Instance) Set(column string, value any) error {
	if err := inst.session.check(); err != nil {
		return err
	}
	if !inst.table.Fields.Has(column) {
		return dberr.UnknownColumn.New(column, inst.table.Name)
	}
	_, err := inst.session.Update(inst.table.Name, inst.key, map[string]any{column: value})
	return err
}
