package transaction

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/expr"
	"github.com/tobsdb/memdb/internal/metrics"
	"github.com/tobsdb/memdb/internal/query"
	"github.com/tobsdb/memdb/pkg"
)

type opKind string

const (
	opInsert opKind = "insert"
	opUpdate opKind = "update"
	opDelete opKind = "delete"
)

// stagedOp is one pending mutation, replayed against the committed rows on
// commit in the order it was staged.
type stagedOp struct {
	kind  opKind
	table *builder.Table
	key   any
	// full row for inserts, normalized changes for updates
	row builder.Row
}

type identityKey struct {
	table string
	key   any
}

type Options struct {
	Metrics *metrics.Metrics
	// Alive is checked before every operation; a non-nil error aborts it.
	Alive func() error
}

// Session stages mutations over the committed state of a schema. Reads made
// through the session see its own staged changes and never another
// session's. A Session is not safe for concurrent use.
type Session struct {
	id     uuid.UUID
	schema *builder.Schema
	opts   Options

	ctx *TransactionCtx
	ops []stagedOp
	// current staged row per table and key; nil marks a staged delete
	overlay  pkg.Map[string, query.Overlay]
	identity pkg.Map[identityKey, *Instance]
	closed   bool
}

func NewSession(schema *builder.Schema, opts Options) *Session {
	s := &Session{
		id:       uuid.Must(uuid.NewV7()),
		schema:   schema,
		opts:     opts,
		ctx:      NewTransactionCtx(),
		overlay:  pkg.Map[string, query.Overlay]{},
		identity: pkg.Map[identityKey, *Instance]{},
	}
	pkg.DebugLog("session", s.id, "opened")
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Ctx returns the current unit of work.
func (s *Session) Ctx() *TransactionCtx { return s.ctx }

func (s *Session) Closed() bool { return s.closed }

// Pending is the number of staged operations in the current unit.
func (s *Session) Pending() int { return len(s.ops) }

// Overlay returns the staged rows of table for query execution.
func (s *Session) Overlay(table string) query.Overlay {
	return s.overlay.Get(table)
}

func (s *Session) check() error {
	if s.closed {
		return dberr.SessionClosed.New()
	}
	if s.opts.Alive != nil {
		return s.opts.Alive()
	}
	return nil
}

func (s *Session) table(name string) (*builder.Table, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.schema.Table(name)
}

// current resolves the row visible to this session: its staged state when
// there is one, the committed row otherwise. nil means absent.
func (s *Session) current(t *builder.Table, key any) builder.Row {
	if row, ok := s.overlay.Get(t.Name)[key]; ok {
		return row
	}
	return pkg.RLockValue(s.schema, func() builder.Row {
		row, _ := t.Rows.Get(key)
		return row
	})
}

func (s *Session) stage(t *builder.Table, kind opKind, key any, row builder.Row, current builder.Row) {
	s.ops = append(s.ops, stagedOp{kind: kind, table: t, key: key, row: row})
	overlay := s.overlay.Get(t.Name)
	if overlay == nil {
		overlay = query.Overlay{}
		s.overlay.Set(t.Name, overlay)
	}
	overlay[key] = current
	s.opts.Metrics.ObserveStaged(string(kind))
}

// instance returns the identity-mapped handle for key, creating it on
// first use.
func (s *Session) instance(t *builder.Table, key any) *Instance {
	id := identityKey{t.Name, key}
	if inst, ok := s.identity[id]; ok {
		return inst
	}
	inst := &Instance{session: s, table: t, key: key}
	s.identity.Set(id, inst)
	return inst
}

// Insert stages a new row. Integer primary keys are allocated here when
// missing, so a rolled back insert still consumes its key.
func (s *Session) Insert(table string, values map[string]any) (*Instance, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	row, err := t.NormalizeRow(values)
	if err != nil {
		return nil, err
	}
	key, err := t.AssignKey(row)
	if err != nil {
		return nil, err
	}
	if s.current(t, key) != nil {
		return nil, dberr.DuplicateKey.New(key, t.Name)
	}
	s.stage(t, opInsert, key, row, row)
	return s.instance(t, key), nil
}

// Get returns the instance for key, or nil when no such row is visible.
func (s *Session) Get(table string, key any) (*Instance, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	key, err = t.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	if s.current(t, key) == nil {
		return nil, nil
	}
	return s.instance(t, key), nil
}

func (s *Session) Update(table string, key any, changes map[string]any) (*Instance, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	key, err = t.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	normalized, err := s.normalizeChanges(t, key, changes)
	if err != nil {
		return nil, err
	}
	if err := s.update(t, key, normalized); err != nil {
		return nil, err
	}
	return s.instance(t, key), nil
}

func (s *Session) normalizeChanges(t *builder.Table, key any, changes map[string]any) (builder.Row, error) {
	normalized, err := t.NormalizeChanges(changes)
	if err != nil {
		return nil, err
	}
	if normalized.Has(t.PrimaryKey) {
		if pk := normalized.Get(t.PrimaryKey); pk != key {
			field := t.PrimaryField()
			return nil, dberr.InvalidValue.New(pk, field.BuiltinType, field.Name, "primary key cannot change")
		}
		normalized.Delete(t.PrimaryKey)
	}
	return normalized, nil
}

func (s *Session) update(t *builder.Table, key any, changes builder.Row) error {
	current := s.current(t, key)
	if current == nil {
		return dberr.NotFound.New(key, t.Name)
	}
	row := current.Clone()
	for col, val := range changes {
		row.Set(col, val)
	}
	s.stage(t, opUpdate, key, changes, row)
	return nil
}

func (s *Session) Delete(table string, key any) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	key, err = t.NormalizeKey(key)
	if err != nil {
		return err
	}
	return s.delete(t, key)
}

func (s *Session) delete(t *builder.Table, key any) error {
	if s.current(t, key) == nil {
		return dberr.NotFound.New(key, t.Name)
	}
	s.stage(t, opDelete, key, nil, nil)
	return nil
}

// Merge copies values onto the row with the same primary key when one is
// visible, keeping its instance, and stages an insert otherwise.
func (s *Session) Merge(table string, values map[string]any) (*Instance, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if raw := values[t.PrimaryKey]; raw != nil {
		key, err := t.NormalizeKey(raw)
		if err != nil {
			return nil, err
		}
		if s.current(t, key) != nil {
			return s.Update(table, key, values)
		}
	}
	return s.Insert(table, values)
}

// Execute runs q over the committed rows with this session's staged rows
// layered on top.
func (s *Session) Execute(q query.Query) (*query.Result, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	res, err := query.Execute(s.schema, s, q)
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.ObservePlan(res.Plan)
	return res, nil
}

// Find runs a row query and returns the identity-mapped instances of the
// matched rows.
func (s *Session) Find(q query.Query) ([]*Instance, error) {
	if q.Aggregated() {
		return nil, dberr.UnsupportedExpression.New("aggregate query cannot return instances")
	}
	t, err := s.table(q.Table)
	if err != nil {
		return nil, err
	}
	res, err := s.Execute(q)
	if err != nil {
		return nil, err
	}
	instances := make([]*Instance, len(res.Keys))
	for i, key := range res.Keys {
		instances[i] = s.instance(t, key)
	}
	return instances, nil
}

func (s *Session) matchKeys(table string, where *expr.Expr) (*builder.Table, []any, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Execute(query.Query{Table: table, Where: where})
	if err != nil {
		return nil, nil, err
	}
	return t, res.Keys, nil
}

// UpdateWhere stages changes on every visible row matching where and
// returns the number of rows affected. Nothing is staged unless the changes
// are valid for every matched row.
func (s *Session) UpdateWhere(table string, where *expr.Expr, changes map[string]any) (int, error) {
	t, keys, err := s.matchKeys(table, where)
	if err != nil {
		return 0, err
	}
	staged := make([]builder.Row, len(keys))
	for i, key := range keys {
		if staged[i], err = s.normalizeChanges(t, key, changes); err != nil {
			return 0, err
		}
	}
	for i, key := range keys {
		if err := s.update(t, key, staged[i]); err != nil {
			panic(fmt.Sprintf("matched row %s[%v] vanished while staging: %v", t.Name, key, err))
		}
	}
	return len(keys), nil
}

// DeleteWhere stages a delete of every visible row matching where and
// returns the number of rows affected.
func (s *Session) DeleteWhere(table string, where *expr.Expr) (int, error) {
	t, keys, err := s.matchKeys(table, where)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := s.delete(t, key); err != nil {
			panic(fmt.Sprintf("matched row %s[%v] vanished while staging: %v", t.Name, key, err))
		}
	}
	return len(keys), nil
}

func (s *Session) reset(state State) {
	s.ctx.end(state)
	pkg.DebugLog("transaction", s.ctx.ID(), state, "after", s.ctx.Duration(), "ops", len(s.ops))
	s.ops = nil
	s.overlay = pkg.Map[string, query.Overlay]{}
	s.ctx = NewTransactionCtx()
}

// Rollback discards the staged changes of the current unit. Instances
// resolve to committed values again. Rolling back twice is a no-op.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	if len(s.ops) > 0 {
		s.opts.Metrics.ObserveRollback()
	}
	s.reset(StateRolledBack)
	return nil
}

// Close rolls back the current unit and releases the session. Every later
// operation fails with SessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.Rollback()
	s.closed = true
	s.identity = pkg.Map[identityKey, *Instance]{}
	pkg.DebugLog("session", s.id, "closed")
	return err
}

func (op stagedOp) String() string {
	return fmt.Sprintf("%s %s[%v]", op.kind, op.table.Name, op.key)
}
