package transaction

import (
	"time"

	"github.com/google/uuid"
)

type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// TransactionCtx is one unit of work within a session. A session replaces
// its ctx with a fresh active one whenever the current unit ends.
type TransactionCtx struct {
	id uuid.UUID

	startTime time.Time
	endTime   time.Time
	state     State
}

func NewTransactionCtx() *TransactionCtx {
	return &TransactionCtx{id: uuid.Must(uuid.NewV7()), startTime: time.Now(), state: StateActive}
}

func (ctx *TransactionCtx) ID() uuid.UUID        { return ctx.id }
func (ctx *TransactionCtx) StartTime() time.Time { return ctx.startTime }
func (ctx *TransactionCtx) State() State         { return ctx.state }

// Duration is how long the unit has run, or ran if it has ended.
func (ctx *TransactionCtx) Duration() time.Duration {
	if ctx.state == StateActive {
		return time.Since(ctx.startTime)
	}
	return ctx.endTime.Sub(ctx.startTime)
}

func (ctx *TransactionCtx) end(state State) {
	ctx.state = state
	ctx.endTime = time.Now()
}
