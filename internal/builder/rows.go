package builder

import (
	"sync"

	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/internal/types"
	"github.com/tobsdb/memdb/pkg"
	sorted "github.com/tobshub/go-sortedmap"
)

// Maps row field name to its saved data. A committed Row is never mutated;
// updates store a fresh copy.
type Row = pkg.Map[string, any]

// Maps primary key to the committed row, ordered by primary key.
type Rows struct {
	locker sync.RWMutex
	table  *Table

	Map *sorted.SortedMap[any, Row]
}

func NewRows(t *Table) *Rows {
	r := &Rows{table: t}
	r.Map = sorted.New[any, Row](0, r.comparisonFunc)
	return r
}

func (r *Rows) comparisonFunc(a, b Row) bool {
	pk := r.table.PrimaryKey
	return types.Order(a.Get(pk), b.Get(pk)) < 0
}

func (r *Rows) GetLocker() *sync.RWMutex { return &r.locker }

func (r *Rows) Get(key any) (Row, bool) {
	r.locker.RLock()
	defer r.locker.RUnlock()
	return r.Map.Get(key)
}

func (r *Rows) Has(key any) bool {
	r.locker.RLock()
	defer r.locker.RUnlock()
	return r.Map.Has(key)
}

func (r *Rows) Insert(key any, row Row) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	if !r.Map.Insert(key, row) {
		return dberr.DuplicateKey.New(key, r.table.Name)
	}
	return nil
}

// Update stores a new snapshot with changes applied over the current one.
func (r *Rows) Update(key any, changes Row) (Row, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	old, ok := r.Map.Get(key)
	if !ok {
		return nil, dberr.NotFound.New(key, r.table.Name)
	}
	row := old.Clone()
	for col, val := range changes {
		row.Set(col, val)
	}
	r.Map.Replace(key, row)
	return row, nil
}

// Delete removes the row and returns the last committed snapshot.
func (r *Rows) Delete(key any) (Row, bool) {
	r.locker.Lock()
	defer r.locker.Unlock()
	old, ok := r.Map.Get(key)
	if !ok {
		return nil, false
	}
	r.Map.Delete(key)
	return old, true
}

func (r *Rows) Len() int {
	r.locker.RLock()
	defer r.locker.RUnlock()
	return r.Map.Len()
}

// Snapshot returns the committed rows in primary key order as of the call.
func (r *Rows) Snapshot() []Row {
	r.locker.RLock()
	defer r.locker.RUnlock()

	found_rows := make([]Row, 0, r.Map.Len())
	if r.Map.Len() == 0 {
		return found_rows
	}
	iterCh, err := r.Map.IterCh()
	if err != nil {
		return found_rows
	}
	for row := range iterCh.Records() {
		found_rows = append(found_rows, row.Val)
	}
	return found_rows
}

// Scan calls fn for each committed row in primary key order until fn
// returns false. Rows committed after Scan starts are not visited.
func (r *Rows) Scan(fn func(row Row) bool) {
	for _, row := range r.Snapshot() {
		if !fn(row) {
			return
		}
	}
}

func (r *Rows) Clear() {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.Map = sorted.New[any, Row](0, r.comparisonFunc)
}
