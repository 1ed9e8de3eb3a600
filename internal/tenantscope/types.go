package tenantscope

import (
	"context"
	"reflect"
	"strings"
	"time"
)

// TenantID identifica a un tenant. Solo lo produce un Resolver.
type TenantID string

func (t TenantID) String() string { return string(t) }

// IsZero reporta si el id está vacío (tenant no resuelto).
func (t TenantID) IsZero() bool { return strings.TrimSpace(string(t)) == "" }

// ObjectKey identifica un objeto lógico dentro del scope de un tenant.
type ObjectKey string

func (k ObjectKey) String() string { return string(k) }

// IsZero reporta si la key está vacía.
func (k ObjectKey) IsZero() bool { return strings.TrimSpace(string(k)) == "" }

// KeyFor arma una ObjectKey a partir del tipo T y un calificador opcional.
// Ej: KeyFor[*pgxpool.Pool]("primary") -> "github.com/jackc/pgx/v5/pgxpool.Pool#primary"
func KeyFor[T any](qualifier string) ObjectKey {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.String()
	if t.PkgPath() != "" && t.Name() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	qualifier = strings.TrimSpace(qualifier)
	if qualifier == "" {
		return ObjectKey(name)
	}
	return ObjectKey(name + "#" + qualifier)
}

// Resolver resuelve el tenant de la operación en curso.
// Un error o un TenantID vacío significan "no resuelto".
type Resolver interface {
	ResolveTenant(ctx context.Context) (TenantID, error)
}

// ResolverFunc adapta una función a Resolver.
type ResolverFunc func(ctx context.Context) (TenantID, error)

func (f ResolverFunc) ResolveTenant(ctx context.Context) (TenantID, error) { return f(ctx) }

// Factory construye una instancia nueva en un miss. El ctx recibido lleva el
// tenant ya resuelto (ver CurrentTenant) y los valores del caller, pero no su
// cancelación: si necesita un límite de tiempo lo pone el propio factory.
type Factory func(ctx context.Context) (any, error)

// Result clasifica una operación para métricas.
type Result string

const (
	ResultHit        Result = "hit"
	ResultCreated    Result = "created"
	ResultFailed     Result = "failed"
	ResultRemoved    Result = "removed"
	ResultAbsent     Result = "absent"
	ResultUnresolved Result = "unresolved"
)

// MetricsFunc callback para reportar operaciones del registry.
// La duración solo es distinta de cero en created/failed (tiempo del factory).
type MetricsFunc func(tenant TenantID, key ObjectKey, result Result, duration time.Duration)

// Stats es un snapshot del estado del registry.
type Stats struct {
	Tenants   int
	Objects   int
	PerTenant map[TenantID]int
}

type tenantCtxKey struct{}

func withTenant(ctx context.Context, id TenantID) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, id)
}

// CurrentTenant devuelve el tenant resuelto por el registry.
// Solo está disponible dentro del ctx que recibe un Factory.
func CurrentTenant(ctx context.Context) (TenantID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(tenantCtxKey{}).(TenantID)
	return id, ok && !id.IsZero()
}
