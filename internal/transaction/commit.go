package transaction

import (
	"fmt"

	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/pkg"
)

// Commit applies the staged operations in the order they were staged.
// Every operation is checked against the committed rows before any is
// applied; on failure nothing is applied and the staged work is kept.
func (s *Session) Commit() error {
	if err := s.check(); err != nil {
		return err
	}
	var err error
	pkg.LockWrap(s.schema, func() {
		if err = s.validate(); err != nil {
			return
		}
		s.apply()
	})
	s.opts.Metrics.ObserveCommit(err, dberr.Name(err))
	if err != nil {
		pkg.DebugLog("transaction", s.ctx.ID(), "commit rejected:", err)
		return err
	}
	s.reset(StateCommitted)
	return nil
}

// validate replays the staged operations over the committed key sets.
// Must be called with the schema lock held.
func (s *Session) validate() error {
	present := pkg.Map[identityKey, bool]{}
	exists := func(op stagedOp) bool {
		if v, ok := present[identityKey{op.table.Name, op.key}]; ok {
			return v
		}
		return op.table.Rows.Has(op.key)
	}

	for _, op := range s.ops {
		id := identityKey{op.table.Name, op.key}
		switch op.kind {
		case opInsert:
			if exists(op) {
				return dberr.DuplicateKey.New(op.key, op.table.Name)
			}
			present.Set(id, true)
		case opUpdate:
			if !exists(op) {
				return dberr.NotFound.New(op.key, op.table.Name)
			}
		case opDelete:
			if !exists(op) {
				return dberr.NotFound.New(op.key, op.table.Name)
			}
			present.Set(id, false)
		}
	}
	return nil
}

// apply writes validated operations to the row store and indexes. A
// failure here means the store and the validation disagree.
// Must be called with the schema lock held.
func (s *Session) apply() {
	for _, op := range s.ops {
		t := op.table
		switch op.kind {
		case opInsert:
			if err := t.Rows.Insert(op.key, op.row); err != nil {
				panic(fmt.Sprintf("commit %s: %v", op, err))
			}
			t.Indexes.OnInsert(op.key, op.row)
		case opUpdate:
			old, _ := t.Rows.Get(op.key)
			row, err := t.Rows.Update(op.key, op.row)
			if err != nil {
				panic(fmt.Sprintf("commit %s: %v", op, err))
			}
			t.Indexes.OnUpdate(op.key, old, row)
		case opDelete:
			old, ok := t.Rows.Delete(op.key)
			if !ok {
				panic(fmt.Sprintf("commit %s: row missing", op))
			}
			t.Indexes.OnDelete(op.key, old)
		}
	}
}
