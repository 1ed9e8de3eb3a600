// Package tenantscope provides a tenant-scoped object registry: at most one
// instance per (tenant, object key), created lazily and kept until it is
// explicitly removed.
//
// # Design Decisions
//
//   - Resolución fresca: el tenant se resuelve en cada operación con el Resolver
//     configurado. Si no se puede resolver, la operación falla con
//     ErrTenantUnresolved; nunca se usa un tenant por defecto.
//   - Dos niveles: TenantID -> scope (sync.Map, creación atómica con LoadOrStore)
//     y ObjectKey -> instancia dentro de cada scope (RWMutex).
//   - Creación única: dentro de un scope, los misses concurrentes para la misma
//     key comparten una sola llamada al factory (singleflight). Un factory lento
//     solo bloquea a quienes piden esa misma key de ese mismo tenant.
//   - Sin entradas parciales: si el factory falla (error, panic o nil) no se
//     guarda nada y el próximo Get vuelve a intentar.
//
// # Usage
//
//	reg, err := tenantscope.New(tenantscope.Config{
//	    Resolver: tenant.ContextResolver(),
//	})
//
//	client, err := tenantscope.GetAs(ctx, reg, tenantscope.KeyFor[CacheClient]("default"),
//	    func(ctx context.Context) (CacheClient, error) {
//	        id, _ := tenantscope.CurrentTenant(ctx)
//	        return dial(ctx, id)
//	    })
//
//	// Evicción explícita: el próximo Get vuelve a llamar al factory.
//	old, ok, err := reg.Remove(ctx, key)
package tenantscope
