package tenantscope

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
)

// Config permite personalizar el Registry.
type Config struct {
	// Resolver determina el tenant de cada operación (requerido).
	Resolver Resolver

	// Logger fijo para el registry. Si es nil se usa logger.From(ctx),
	// así los campos del request (request_id, tenant) llegan a los logs.
	Logger *zap.Logger

	// MetricsFunc opcional: callback por operación.
	MetricsFunc MetricsFunc
}

// Registry administra instancias únicas por (tenant, key).
// Es seguro para uso concurrente.
type Registry struct {
	resolver    Resolver
	log         *zap.Logger
	metricsFunc MetricsFunc

	// scopes mapa de TenantID -> *scope
	scopes sync.Map
	closed atomic.Bool
}

// New crea un Registry con la configuración indicada.
func New(cfg Config) (*Registry, error) {
	if cfg.Resolver == nil {
		return nil, ErrResolverNotConfigured
	}
	return &Registry{
		resolver:    cfg.Resolver,
		log:         cfg.Logger,
		metricsFunc: cfg.MetricsFunc,
	}, nil
}

// Get devuelve la instancia guardada para (tenant actual, key) o la crea con
// factory si no existe. Los errores del factory se devuelven sin modificar y
// no se cachean.
func (r *Registry) Get(ctx context.Context, key ObjectKey, factory Factory) (any, error) {
	if err := r.checkKey(key); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, ErrNilFactory
	}

	tenant, err := r.resolve(ctx, key, "Get")
	if err != nil {
		return nil, err
	}
	sc := r.scopeFor(tenant)

	if obj, ok := sc.lookup(key); ok {
		r.observe(tenant, key, ResultHit, 0)
		return obj, nil
	}

	v, err, _ := sc.sf.Do(string(key), func() (any, error) {
		// Double-check: un flight anterior pudo haber terminado entre el lookup y el Do
		if obj, ok := sc.lookup(key); ok {
			return obj, nil
		}
		return r.create(ctx, sc, key, factory)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// create invoca el factory y guarda el resultado. Corre dentro del flight.
// El factory recibe un ctx sin cancelación: los que se unen al flight no
// heredan el cancel del primer caller. Conserva los valores (logger, tenant).
func (r *Registry) create(ctx context.Context, sc *scope, key ObjectKey, factory Factory) (any, error) {
	ctx = context.WithoutCancel(ctx)
	log := r.logFor(ctx).With(logger.TenantID(sc.tenant.String()), logger.ObjectKey(key.String()))

	start := time.Now()
	obj, err := factory(withTenant(ctx, sc.tenant))
	dur := time.Since(start)
	if err == nil && isNil(obj) {
		err = ErrNilObject
	}
	if err != nil {
		r.observe(sc.tenant, key, ResultFailed, dur)
		log.Warn("tenant object factory failed", logger.Duration(dur), logger.Err(err))
		return nil, err
	}

	canonical, inserted, ok := sc.store(key, obj)
	if !ok {
		// Close corrió mientras el factory trabajaba: la instancia nunca se publica.
		if cerr := closeObject(obj); cerr != nil {
			log.Warn("close orphan tenant object", logger.Err(cerr))
		}
		return nil, ErrClosed
	}
	if !inserted {
		if cerr := closeObject(obj); cerr != nil {
			log.Warn("close duplicate tenant object", logger.Err(cerr))
		}
		return canonical, nil
	}

	r.observe(sc.tenant, key, ResultCreated, dur)
	log.Debug("tenant object created", logger.Duration(dur))
	return canonical, nil
}

// Remove quita y devuelve la instancia guardada para (tenant actual, key).
// Si no había nada devuelve (nil, false, nil). No cierra la instancia: pasa a
// ser responsabilidad de quien llama.
func (r *Registry) Remove(ctx context.Context, key ObjectKey) (any, bool, error) {
	if err := r.checkKey(key); err != nil {
		return nil, false, err
	}
	tenant, err := r.resolve(ctx, key, "Remove")
	if err != nil {
		return nil, false, err
	}

	sc, ok := r.loadScope(tenant)
	if !ok {
		r.observe(tenant, key, ResultAbsent, 0)
		return nil, false, nil
	}
	obj, ok := sc.delete(key)
	if !ok {
		r.observe(tenant, key, ResultAbsent, 0)
		return nil, false, nil
	}

	r.observe(tenant, key, ResultRemoved, 0)
	r.logFor(ctx).Debug("tenant object removed",
		logger.TenantID(tenant.String()),
		logger.ObjectKey(key.String()),
	)
	return obj, true, nil
}

// Lookup devuelve la instancia guardada sin crearla.
func (r *Registry) Lookup(ctx context.Context, key ObjectKey) (any, bool, error) {
	if err := r.checkKey(key); err != nil {
		return nil, false, err
	}
	tenant, err := r.resolve(ctx, key, "Lookup")
	if err != nil {
		return nil, false, err
	}
	sc, ok := r.loadScope(tenant)
	if !ok {
		return nil, false, nil
	}
	obj, ok := sc.lookup(key)
	return obj, ok, nil
}

// Keys devuelve las keys guardadas para el tenant actual, ordenadas.
func (r *Registry) Keys(ctx context.Context) ([]ObjectKey, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	tenant, err := r.resolve(ctx, "", "Keys")
	if err != nil {
		return nil, err
	}
	sc, ok := r.loadScope(tenant)
	if !ok {
		return []ObjectKey{}, nil
	}
	return sc.keys(), nil
}

// Stats devuelve un snapshot con la cantidad de instancias por tenant.
func (r *Registry) Stats() Stats {
	st := Stats{PerTenant: make(map[TenantID]int)}
	r.scopes.Range(func(k, v any) bool {
		n := v.(*scope).len()
		st.PerTenant[k.(TenantID)] = n
		st.Tenants++
		st.Objects += n
		return true
	})
	return st
}

// Snapshot devuelve la instancia guardada bajo key para cada tenant que la tenga.
// No resuelve tenant: pensado para collectors de métricas y tareas de mantenimiento.
func (r *Registry) Snapshot(key ObjectKey) map[TenantID]any {
	out := make(map[TenantID]any)
	r.scopes.Range(func(k, v any) bool {
		if obj, ok := v.(*scope).lookup(key); ok {
			out[k.(TenantID)] = obj
		}
		return true
	})
	return out
}

// Tenants devuelve los tenants con scope creado, ordenados.
func (r *Registry) Tenants() []TenantID {
	var out []TenantID
	r.scopes.Range(func(k, _ any) bool {
		out = append(out, k.(TenantID))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close vacía todos los scopes y cierra las instancias que implementan io.Closer.
// Es idempotente; después de Close las operaciones devuelven ErrClosed.
func (r *Registry) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	var errs []error
	closedCount := 0
	r.scopes.Range(func(_, v any) bool {
		sc := v.(*scope)
		for key, obj := range sc.drain() {
			closedCount++
			if err := closeObject(obj); err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", sc.tenant, key, err))
			}
		}
		return true
	})

	logger.L().Info("tenant registry closed",
		logger.Component("tenantscope"),
		logger.Count(closedCount),
		logger.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

// Closed reporta si el registry fue cerrado.
func (r *Registry) Closed() bool { return r.closed.Load() }

func (r *Registry) checkKey(key ObjectKey) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if key.IsZero() {
		return ErrInvalidKey
	}
	return nil
}

// resolve consulta al Resolver en cada operación; nunca cachea el tenant.
func (r *Registry) resolve(ctx context.Context, key ObjectKey, op string) (TenantID, error) {
	id, err := r.resolver.ResolveTenant(ctx)
	if err == nil && id.IsZero() {
		err = ErrTenantUnresolved
	}
	if err == nil {
		return id, nil
	}

	r.observe("", key, ResultUnresolved, 0)
	r.logFor(ctx).Debug("tenant unresolved",
		logger.Op(op),
		logger.ObjectKey(key.String()),
		logger.Err(err),
	)
	if errors.Is(err, ErrTenantUnresolved) {
		return "", err
	}
	return "", fmt.Errorf("%w: %w", ErrTenantUnresolved, err)
}

func (r *Registry) scopeFor(tenant TenantID) *scope {
	if v, ok := r.scopes.Load(tenant); ok {
		return v.(*scope)
	}
	v, _ := r.scopes.LoadOrStore(tenant, newScope(tenant, &r.closed))
	return v.(*scope)
}

func (r *Registry) loadScope(tenant TenantID) (*scope, bool) {
	v, ok := r.scopes.Load(tenant)
	if !ok {
		return nil, false
	}
	return v.(*scope), true
}

func (r *Registry) logFor(ctx context.Context) *zap.Logger {
	if r.log != nil {
		return r.log
	}
	return logger.From(ctx).With(logger.Component("tenantscope"))
}

func (r *Registry) observe(tenant TenantID, key ObjectKey, result Result, d time.Duration) {
	if r.metricsFunc != nil {
		r.metricsFunc(tenant, key, result, d)
	}
}
