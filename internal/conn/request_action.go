package conn

import (
	"fmt"
	"net/http"

	"github.com/tobsdb/memdb/internal/auth"
)

type RequestAction string

const (
	// schema actions
	RequestActionDefineSchema RequestAction = "defineSchema"

	// rows actions
	RequestActionCreate     RequestAction = "create"
	RequestActionFind       RequestAction = "findUnique"
	RequestActionFindMany   RequestAction = "findMany"
	RequestActionUpdateMany RequestAction = "updateMany"
	RequestActionDeleteMany RequestAction = "deleteMany"
	RequestActionMerge      RequestAction = "merge"
	RequestActionAggregate  RequestAction = "aggregate"

	// transaction actions
	RequestActionBegin    RequestAction = "begin"
	RequestActionCommit   RequestAction = "commit"
	RequestActionRollback RequestAction = "rollback"
)

func (action RequestAction) IsReadOnly() bool {
	switch action {
	case RequestActionFind, RequestActionFindMany, RequestActionAggregate,
		RequestActionBegin, RequestActionCommit, RequestActionRollback:
		return true
	}
	return false
}

func (action RequestAction) clearance() auth.UserRole {
	switch {
	case action == RequestActionDefineSchema:
		return auth.UserRoleAdmin
	case action.IsReadOnly():
		return auth.UserRoleReadOnly
	}
	return auth.UserRoleReadWrite
}

func ActionHandler(ctx *ConnCtx, action RequestAction, raw []byte) Response {
	if !ctx.User.HasClearance(action.clearance()) {
		return NewErrorResponse(http.StatusForbidden, auth.InsufficientPermissions.New().Error())
	}

	switch action {
	case RequestActionDefineSchema:
		return DefineSchemaReqHandler(ctx, raw)
	case RequestActionCreate:
		return CreateReqHandler(ctx, raw)
	case RequestActionFind:
		return FindReqHandler(ctx, raw)
	case RequestActionFindMany:
		return FindManyReqHandler(ctx, raw)
	case RequestActionUpdateMany:
		return UpdateManyReqHandler(ctx, raw)
	case RequestActionDeleteMany:
		return DeleteManyReqHandler(ctx, raw)
	case RequestActionMerge:
		return MergeReqHandler(ctx, raw)
	case RequestActionAggregate:
		return AggregateReqHandler(ctx, raw)
	case RequestActionBegin:
		return BeginTransactionReqHandler(ctx)
	case RequestActionCommit:
		return CommitTransactionReqHandler(ctx)
	case RequestActionRollback:
		return RollbackTransactionReqHandler(ctx)
	default:
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("unknown action: %s", action))
	}
}
