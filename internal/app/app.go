// Package app cablea config, registry, managers por tenant, métricas y router
// en una aplicación lista para servir.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/tenantscope/internal/config"
	mw "github.com/dropDatabas3/tenantscope/internal/http/middlewares"
	"github.com/dropDatabas3/tenantscope/internal/http/router"
	"github.com/dropDatabas3/tenantscope/internal/infra/tenantcache"
	"github.com/dropDatabas3/tenantscope/internal/infra/tenantsql"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/observability/metrics"
	"github.com/dropDatabas3/tenantscope/internal/rate"
	"github.com/dropDatabas3/tenantscope/internal/security/secretbox"
	"github.com/dropDatabas3/tenantscope/internal/tenant"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// App es la aplicación cableada.
type App struct {
	Config   *config.Config
	Registry *tenantscope.Registry
	Cache    *tenantcache.Manager
	SQL      *tenantsql.Manager
	Metrics  *metrics.Metrics // nil si metrics.enabled=false
	Rate     *rate.Manager    // nil si rate_limit.enabled=false
	Handler  http.Handler
}

// New construye la aplicación a partir de la config ya cargada.
// El logger global debe estar inicializado por el caller.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	log := logger.Named("app")

	var box *secretbox.Box
	if key := strings.TrimSpace(cfg.Security.SecretBoxMasterKey); key != "" {
		b, err := secretbox.New(key)
		if err != nil {
			return nil, fmt.Errorf("app: secretbox: %w", err)
		}
		box = b
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		var err error
		m, err = metrics.Register(metrics.Config{RuntimeCollectors: true})
		if err != nil {
			return nil, fmt.Errorf("app: metrics: %w", err)
		}
	}

	regCfg := tenantscope.Config{Resolver: tenant.ContextResolver()}
	if m != nil {
		regCfg.MetricsFunc = m.RecordScopeOp
	}
	reg, err := tenantscope.New(regCfg)
	if err != nil {
		return nil, fmt.Errorf("app: registry: %w", err)
	}

	cache, err := tenantcache.New(tenantcache.Config{
		Registry: reg,
		Resolve:  tenantcache.ConfigResolver(cfg, box),
	})
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("app: cache manager: %w", err)
	}

	sql, err := tenantsql.New(tenantsql.Config{
		Registry: reg,
		Resolve:  tenantsql.ConfigResolver(cfg, box),
	})
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("app: sql manager: %w", err)
	}

	if m != nil {
		if err := m.WatchRegistry(reg, sql.Stats); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("app: metrics collector: %w", err)
		}
	}

	var limiter *rate.Manager
	if cfg.RateLimit.Enabled {
		limiter, err = rate.New(rate.Config{
			Registry: reg,
			Counter:  rate.CacheCounter(cache),
			Limits:   rate.ConfigLimits(cfg),
		})
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("app: rate limiter: %w", err)
		}
	}

	deps := router.Deps{
		Registry:    reg,
		Cache:       cache,
		SQL:         sql,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
		Version:     cfg.App.Version,
		Tenant: mw.TenantMiddlewareConfig{
			Resolver: TenantResolver(cfg),
			Optional: !cfg.Tenancy.Required,
			Known:    KnownTenants(cfg),
		},
	}
	if limiter != nil {
		deps.RateLimit = limiter
	}
	handler := router.New(deps)

	log.Info("app wired",
		logger.Count(len(cfg.Tenants)),
		logger.Bool("metrics", m != nil),
		logger.Bool("rate_limit", limiter != nil),
		logger.Bool("secretbox", box != nil),
	)

	return &App{
		Config:   cfg,
		Registry: reg,
		Cache:    cache,
		SQL:      sql,
		Metrics:  m,
		Rate:     limiter,
		Handler:  handler,
	}, nil
}

// TenantResolver arma la cadena de resolución HTTP según cfg.Tenancy.
// Orden: headers -> bearer claim (si hay secret) -> query -> subdominio.
func TenantResolver(cfg *config.Config) mw.TenantResolver {
	var chain []mw.TenantResolver
	for _, h := range cfg.Tenancy.Headers {
		if h = strings.TrimSpace(h); h != "" {
			chain = append(chain, mw.HeaderTenantResolver(h))
		}
	}
	if secret := cfg.Tenancy.JWT.Secret; secret != "" {
		chain = append(chain, mw.BearerClaimResolver([]byte(secret), cfg.Tenancy.JWT.Claim))
	}
	if q := strings.TrimSpace(cfg.Tenancy.QueryParam); q != "" {
		chain = append(chain, mw.QueryTenantResolver(q))
	}
	if cfg.Tenancy.Subdomain {
		chain = append(chain, mw.SubdomainTenantResolver())
	}
	return mw.ChainResolvers(chain...)
}

// KnownTenants devuelve el filtro de tenants declarados en cfg.Tenants, o nil
// si no hay ninguno declarado (todo slug válido pasa y se resuelve con defaults).
func KnownTenants(cfg *config.Config) func(slug string) bool {
	if len(cfg.Tenants) == 0 {
		return nil
	}
	return func(slug string) bool {
		_, ok := cfg.Tenants[slug]
		return ok
	}
}

// Server devuelve el http.Server configurado con los timeouts de cfg.Server.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      a.Handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Run sirve HTTP hasta que ctx se cancela y luego hace shutdown ordenado:
// primero el server (drena requests), después el registry (cierra pools y clientes).
func (a *App) Run(ctx context.Context) error {
	srv := a.Server()
	log := logger.Named("http")

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", logger.Duration(a.Config.Server.ShutdownTimeout))
	shCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	shErr := srv.Shutdown(shCtx)
	return errors.Join(shErr, a.Close())
}

// Close cierra el registry (y con él todos los objetos io.Closer por tenant).
// Es idempotente.
func (a *App) Close() error {
	if a == nil || a.Registry == nil {
		return nil
	}
	return a.Registry.Close()
}
