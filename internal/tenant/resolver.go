package tenant

import (
	"context"
	"errors"

	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// ErrNoTenant indica que el contexto no trae tenant.
var ErrNoTenant = errors.New("tenant: no tenant in context")

// ContextResolver resuelve el tenant inyectado con WithID (normalmente por el
// middleware HTTP de tenant).
func ContextResolver() tenantscope.Resolver {
	return tenantscope.ResolverFunc(func(ctx context.Context) (tenantscope.TenantID, error) {
		if id, ok := IDFromContext(ctx); ok {
			return id, nil
		}
		return "", ErrNoTenant
	})
}

// StaticResolver siempre resuelve al mismo tenant. Útil en CLI y jobs de un solo tenant.
func StaticResolver(id tenantscope.TenantID) tenantscope.Resolver {
	return tenantscope.ResolverFunc(func(context.Context) (tenantscope.TenantID, error) {
		if id.IsZero() {
			return "", ErrNoTenant
		}
		return id, nil
	})
}

// Chain devuelve el primer tenant resuelto. Si ninguno resuelve, devuelve el
// último error (o ErrNoTenant).
func Chain(resolvers ...tenantscope.Resolver) tenantscope.Resolver {
	return tenantscope.ResolverFunc(func(ctx context.Context) (tenantscope.TenantID, error) {
		lastErr := ErrNoTenant
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			id, err := r.ResolveTenant(ctx)
			if err == nil && !id.IsZero() {
				return id, nil
			}
			if err != nil {
				lastErr = err
			}
		}
		return "", lastErr
	})
}
