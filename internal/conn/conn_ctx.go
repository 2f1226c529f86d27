package conn

import (
	"github.com/tobsdb/memdb"
	"github.com/tobsdb/memdb/internal/auth"
	"github.com/tobsdb/memdb/pkg"
)

// ConnCtx is the state of one client connection. Each connection owns a
// single session; outside an explicit transaction every mutating action
// commits immediately.
type ConnCtx struct {
	Engine  *memdb.Engine
	Session *memdb.Session
	User    *auth.User

	inTx bool
}

func NewConnCtx(engine *memdb.Engine, user *auth.User) (*ConnCtx, error) {
	session, err := engine.Session()
	if err != nil {
		return nil, err
	}
	return &ConnCtx{Engine: engine, Session: session, User: user}, nil
}

func (ctx *ConnCtx) InTransaction() bool { return ctx.inTx }

// finish commits the staged work when no explicit transaction is open.
func (ctx *ConnCtx) finish() error {
	if ctx.inTx {
		return nil
	}
	if err := ctx.Session.Commit(); err != nil {
		ctx.Session.Rollback()
		return err
	}
	return nil
}

func (ctx *ConnCtx) Close() {
	if err := ctx.Session.Close(); err != nil {
		pkg.ErrorLog("closing session", ctx.Session.ID(), err)
	}
}
