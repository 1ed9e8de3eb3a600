// Package tenant transporta el tenant resuelto de un request a través del
// context y provee Resolvers para el registry de objetos por tenant.
package tenant

import (
	"context"
	"strings"

	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

type ctxKey struct{}

// WithID inyecta el tenant en el contexto. Un id vacío no se inyecta.
func WithID(ctx context.Context, id tenantscope.TenantID) context.Context {
	id = tenantscope.TenantID(strings.TrimSpace(id.String()))
	if id.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext obtiene el tenant del contexto.
func IDFromContext(ctx context.Context) (tenantscope.TenantID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(tenantscope.TenantID)
	return id, ok && !id.IsZero()
}
