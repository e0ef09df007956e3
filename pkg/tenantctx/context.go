package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type keyType string

const (
	ScopeKey keyType = "tenant_scope"
)

const RoleSuperAdmin = "super_admin"

// Scope is the tenant view resolved for the current caller.
type Scope struct {
	CabinetID snowflake.ID
	UserID    snowflake.ID
	Role      string
}

// Unscoped reports whether the caller may read across tenants.
func (s Scope) Unscoped() bool {
	return s.Role == RoleSuperAdmin
}

func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(ScopeKey).(Scope)
	return scope, ok
}

func CabinetID(ctx context.Context) (snowflake.ID, bool) {
	scope, ok := FromContext(ctx)
	if !ok || scope.CabinetID == 0 {
		return 0, false
	}
	return scope.CabinetID, true
}
