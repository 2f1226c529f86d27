package builder

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/btree"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
)

const index_degree = 32

type indexEntry struct {
	value any
	keys  pkg.Map[any, struct{}]
}

func (e *indexEntry) sortedKeys() []any {
	keys := e.keys.Keys()
	slices.SortFunc(keys, types.Order)
	return keys
}

func indexEntryLess(a, b *indexEntry) bool {
	return types.Order(a.value, b.value) < 0
}

// Bound is one end of a range lookup. An unset bound is unbounded.
type Bound struct {
	Value     any
	Inclusive bool
	Set       bool
}

func Inclusive(v any) Bound { return Bound{Value: v, Inclusive: true, Set: true} }
func Exclusive(v any) Bound { return Bound{Value: v, Set: true} }

// Index maps the values of one column to the primary keys holding them.
// null values are not indexed.
type Index struct {
	locker sync.RWMutex
	Column string
	tree   *btree.BTreeG[*indexEntry]
}

func NewIndex(column string) *Index {
	return &Index{Column: column, tree: btree.NewG(index_degree, indexEntryLess)}
}

func (idx *Index) GetLocker() *sync.RWMutex { return &idx.locker }

func (idx *Index) add(value, key any) {
	if value == nil {
		return
	}
	entry, ok := idx.tree.Get(&indexEntry{value: value})
	if !ok {
		entry = &indexEntry{value: value, keys: pkg.Map[any, struct{}]{}}
		idx.tree.ReplaceOrInsert(entry)
	}
	entry.keys.Set(key, struct{}{})
}

func (idx *Index) remove(value, key any) {
	if value == nil {
		return
	}
	entry, ok := idx.tree.Get(&indexEntry{value: value})
	if !ok || !entry.keys.Has(key) {
		panic(fmt.Sprintf("index %s is missing key %v for value %v", idx.Column, key, value))
	}
	entry.keys.Delete(key)
	if len(entry.keys) == 0 {
		idx.tree.Delete(entry)
	}
}

func (idx *Index) Add(value, key any) {
	pkg.LockWrap(idx, func() { idx.add(value, key) })
}

func (idx *Index) Remove(value, key any) {
	pkg.LockWrap(idx, func() { idx.remove(value, key) })
}

// LookupEq returns the keys whose column value equals value, in key order.
func (idx *Index) LookupEq(value any) []any {
	if value == nil {
		return []any{}
	}
	idx.locker.RLock()
	defer idx.locker.RUnlock()
	entry, ok := idx.tree.Get(&indexEntry{value: value})
	if !ok {
		return []any{}
	}
	return entry.sortedKeys()
}

func (idx *Index) Count(value any) int {
	if value == nil {
		return 0
	}
	idx.locker.RLock()
	defer idx.locker.RUnlock()
	entry, ok := idx.tree.Get(&indexEntry{value: value})
	if !ok {
		return 0
	}
	return len(entry.keys)
}

func (idx *Index) ascendRange(lower, upper Bound, fn func(e *indexEntry)) {
	iter := func(e *indexEntry) bool {
		if lower.Set && !lower.Inclusive && types.Order(e.value, lower.Value) == 0 {
			return true
		}
		if upper.Set {
			c := types.Order(e.value, upper.Value)
			if c > 0 || (c == 0 && !upper.Inclusive) {
				return false
			}
		}
		fn(e)
		return true
	}
	if lower.Set {
		idx.tree.AscendGreaterOrEqual(&indexEntry{value: lower.Value}, iter)
	} else {
		idx.tree.Ascend(iter)
	}
}

// LookupRange returns the keys whose column value lies between the bounds,
// ordered by value, then key.
func (idx *Index) LookupRange(lower, upper Bound) []any {
	idx.locker.RLock()
	defer idx.locker.RUnlock()
	keys := []any{}
	idx.ascendRange(lower, upper, func(e *indexEntry) {
		keys = append(keys, e.sortedKeys()...)
	})
	return keys
}

func (idx *Index) CountRange(lower, upper Bound) int {
	idx.locker.RLock()
	defer idx.locker.RUnlock()
	count := 0
	idx.ascendRange(lower, upper, func(e *indexEntry) {
		count += len(e.keys)
	})
	return count
}

// Len is the number of distinct indexed values.
func (idx *Index) Len() int {
	idx.locker.RLock()
	defer idx.locker.RUnlock()
	return idx.tree.Len()
}

func (idx *Index) Clear() {
	pkg.LockWrap(idx, func() { idx.tree.Clear(false) })
}

// IndexManager keeps the indexes of one table in step with its rows.
type IndexManager struct {
	locker  sync.RWMutex
	table   *Table
	indexes pkg.Map[string, *Index]
}

func NewIndexManager(t *Table) *IndexManager {
	return &IndexManager{table: t, indexes: pkg.Map[string, *Index]{}}
}

func (m *IndexManager) GetLocker() *sync.RWMutex { return &m.locker }

// Create builds an index for column from the committed rows. Creating an
// existing index is a no-op.
func (m *IndexManager) Create(column string, rows *Rows) {
	pkg.LockWrap(m, func() {
		if m.indexes.Has(column) {
			return
		}
		idx := NewIndex(column)
		pk := m.table.PrimaryKey
		rows.Scan(func(row Row) bool {
			idx.add(row.Get(column), row.Get(pk))
			return true
		})
		m.indexes.Set(column, idx)
	})
}

func (m *IndexManager) Get(column string) (*Index, bool) {
	m.locker.RLock()
	defer m.locker.RUnlock()
	idx, ok := m.indexes[column]
	return idx, ok
}

func (m *IndexManager) Has(column string) bool {
	_, ok := m.Get(column)
	return ok
}

func (m *IndexManager) Columns() []string {
	m.locker.RLock()
	defer m.locker.RUnlock()
	columns := m.indexes.Keys()
	slices.Sort(columns)
	return columns
}

func (m *IndexManager) each(fn func(idx *Index)) {
	m.locker.RLock()
	defer m.locker.RUnlock()
	for _, idx := range m.indexes {
		fn(idx)
	}
}

func (m *IndexManager) OnInsert(key any, row Row) {
	m.each(func(idx *Index) { idx.Add(row.Get(idx.Column), key) })
}

// OnUpdate moves key between index entries for every indexed column whose
// value changed.
func (m *IndexManager) OnUpdate(key any, old_row, new_row Row) {
	m.each(func(idx *Index) {
		old_val, new_val := old_row.Get(idx.Column), new_row.Get(idx.Column)
		if types.Equal(old_val, new_val) {
			return
		}
		pkg.LockWrap(idx, func() {
			idx.remove(old_val, key)
			idx.add(new_val, key)
		})
	})
}

func (m *IndexManager) OnDelete(key any, row Row) {
	m.each(func(idx *Index) { idx.Remove(row.Get(idx.Column), key) })
}

func (m *IndexManager) Clear() {
	m.each(func(idx *Index) { idx.Clear() })
}
