package memdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/tobsdb/memdb/internal/expr"
	"golang.org/x/sync/semaphore"
)

// AsyncSession runs the calls of a Session on the engine's worker pool.
// Calls from one AsyncSession run one at a time in the order they were
// made. A call whose ctx ends while it is waiting for a turn never runs; one
// whose ctx ends while running still completes, but its result is dropped.
type AsyncSession struct {
	session *Session
	pool    *semaphore.Weighted
	turn    *semaphore.Weighted
}

func (e *Engine) AsyncSession() (*AsyncSession, error) {
	session, err := e.Session()
	if err != nil {
		return nil, err
	}
	return &AsyncSession{session: session, pool: e.pool, turn: semaphore.NewWeighted(1)}, nil
}

func (a *AsyncSession) ID() uuid.UUID { return a.session.ID() }

type outcome[T any] struct {
	value T
	err   error
}

func run[T any](ctx context.Context, a *AsyncSession, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := a.turn.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	if err := a.pool.Acquire(ctx, 1); err != nil {
		a.turn.Release(1)
		return zero, err
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer a.turn.Release(1)
		defer a.pool.Release(1)
		value, err := fn()
		done <- outcome[T]{value, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func runErr(ctx context.Context, a *AsyncSession, fn func() error) error {
	_, err := run(ctx, a, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (a *AsyncSession) Insert(ctx context.Context, table string, values map[string]any) (*Instance, error) {
	return run(ctx, a, func() (*Instance, error) { return a.session.Insert(table, values) })
}

func (a *AsyncSession) Get(ctx context.Context, table string, key any) (*Instance, error) {
	return run(ctx, a, func() (*Instance, error) { return a.session.Get(table, key) })
}

func (a *AsyncSession) Update(ctx context.Context, table string, key any, changes map[string]any) (*Instance, error) {
	return run(ctx, a, func() (*Instance, error) { return a.session.Update(table, key, changes) })
}

func (a *AsyncSession) Delete(ctx context.Context, table string, key any) error {
	return runErr(ctx, a, func() error { return a.session.Delete(table, key) })
}

func (a *AsyncSession) Merge(ctx context.Context, table string, values map[string]any) (*Instance, error) {
	return run(ctx, a, func() (*Instance, error) { return a.session.Merge(table, values) })
}

func (a *AsyncSession) Execute(ctx context.Context, q Query) (*Result, error) {
	return run(ctx, a, func() (*Result, error) { return a.session.Execute(q) })
}

func (a *AsyncSession) Find(ctx context.Context, q Query) ([]*Instance, error) {
	return run(ctx, a, func() ([]*Instance, error) { return a.session.Find(q) })
}

func (a *AsyncSession) UpdateWhere(ctx context.Context, table string, where *expr.Expr, changes map[string]any) (int, error) {
	return run(ctx, a, func() (int, error) { return a.session.UpdateWhere(table, where, changes) })
}

func (a *AsyncSession) DeleteWhere(ctx context.Context, table string, where *expr.Expr) (int, error) {
	return run(ctx, a, func() (int, error) { return a.session.DeleteWhere(table, where) })
}

func (a *AsyncSession) Commit(ctx context.Context) error {
	return runErr(ctx, a, a.session.Commit)
}

func (a *AsyncSession) Rollback(ctx context.Context) error {
	return runErr(ctx, a, a.session.Rollback)
}

// Close rolls back and closes the session. It waits for any call still
// running regardless of ctx so the rollback is never lost.
func (a *AsyncSession) Close(ctx context.Context) error {
	return runErr(context.WithoutCancel(ctx), a, a.session.Close)
}
