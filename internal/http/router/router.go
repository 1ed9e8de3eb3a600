// Package router arma el árbol de rutas HTTP con chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tenantscope/internal/http/controllers/db"
	"github.com/dropDatabas3/tenantscope/internal/http/controllers/health"
	"github.com/dropDatabas3/tenantscope/internal/http/controllers/kv"
	"github.com/dropDatabas3/tenantscope/internal/http/controllers/scope"
	"github.com/dropDatabas3/tenantscope/internal/http/errors"
	mw "github.com/dropDatabas3/tenantscope/internal/http/middlewares"
	"github.com/dropDatabas3/tenantscope/internal/infra/tenantcache"
	"github.com/dropDatabas3/tenantscope/internal/infra/tenantsql"
	"github.com/dropDatabas3/tenantscope/internal/observability/metrics"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// Deps contiene las dependencias del router. Cache, SQL, Metrics y RateLimit
// son opcionales: si son nil sus rutas (o middlewares) no se montan.
type Deps struct {
	Registry *tenantscope.Registry
	Cache    *tenantcache.Manager
	SQL      *tenantsql.Manager
	Metrics  *metrics.Metrics

	// RateLimit opcional, aplicado en /v1 después de resolver el tenant.
	RateLimit mw.RateLimiter

	MetricsPath string
	Version     string

	// Tenant configura la resolución del tenant en /v1.
	Tenant mw.TenantMiddlewareConfig
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Infra base para todas las rutas
	r.Use(mw.WithRequestID(), mw.WithRecover())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})

	// Health y métricas: sin tenant y sin logging (muy frecuentes)
	r.Get("/readyz", health.NewHealthController(d.Registry, d.Version).Readyz)
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics.Handler())
	}

	tenantMW := mw.NewTenantMiddleware(d.Tenant)
	r.Route("/v1", func(r chi.Router) {
		r.Use(
			mw.WithLogging(),
			tenantMW.Handle,
			mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.RateLimit}),
		)

		sc := scope.NewScopeController(d.Registry)
		r.Get("/scope/objects", sc.List)
		r.Delete("/scope/objects/*", sc.Evict)

		if d.Cache != nil {
			kc := kv.NewKVController(d.Cache)
			r.Get("/kv/{key}", kc.Get)
			r.Put("/kv/{key}", kc.Put)
			r.Delete("/kv/{key}", kc.Delete)
		}
		if d.SQL != nil {
			r.Get("/db/ping", db.NewDBController(d.SQL).Ping)
		}
	})

	return r
}
