package rate

import (
	"context"
	"errors"

	"github.com/dropDatabas3/tenantscope/internal/config"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

var (
	ErrRegistryRequired = errors.New("rate: registry is required")
	ErrCounterRequired  = errors.New("rate: counter is required")
)

// LimiterKey es la key del limiter de cada tenant en el registry.
var LimiterKey = tenantscope.KeyFor[Limiter]("rate")

// LimitsResolver devuelve el límite de un tenant. Max <= 0 => sin límite.
type LimitsResolver func(ctx context.Context, tenant tenantscope.TenantID) (config.RateLimitConfig, error)

type Config struct {
	Registry *tenantscope.Registry
	Counter  CounterFunc
	Limits   LimitsResolver
	Prefix   string // default "rl:"
}

// Manager mantiene un limiter por tenant con los límites de ese tenant.
type Manager struct {
	reg     *tenantscope.Registry
	counter CounterFunc
	limits  LimitsResolver
	prefix  string
}

func New(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, ErrRegistryRequired
	}
	if cfg.Counter == nil {
		return nil, ErrCounterRequired
	}
	if cfg.Limits == nil {
		cfg.Limits = func(context.Context, tenantscope.TenantID) (config.RateLimitConfig, error) {
			return config.RateLimitConfig{}, nil
		}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl:"
	}
	return &Manager{reg: cfg.Registry, counter: cfg.Counter, limits: cfg.Limits, prefix: cfg.Prefix}, nil
}

// ConfigLimits toma rate_limit global pisado por tenants.<slug>.rate_limit.
func ConfigLimits(cfg *config.Config) LimitsResolver {
	return func(_ context.Context, tenant tenantscope.TenantID) (config.RateLimitConfig, error) {
		return cfg.RateLimitFor(tenant.String()), nil
	}
}

// Limiter devuelve (o crea) el limiter del tenant actual.
func (m *Manager) Limiter(ctx context.Context) (Limiter, error) {
	return tenantscope.GetAs(ctx, m.reg, LimiterKey, m.createLimiter)
}

func (m *Manager) createLimiter(ctx context.Context) (Limiter, error) {
	tenant, _ := tenantscope.CurrentTenant(ctx)
	lim, err := m.limits(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if lim.Max <= 0 {
		return unlimited{}, nil
	}
	logger.From(ctx).Debug("rate limiter created",
		logger.Component("rate"),
		logger.Int("max", lim.Max),
		logger.Duration(lim.Window),
	)
	return NewFixedWindow(m.counter, m.prefix+tenant.String()+":", lim.Max, lim.Window), nil
}

// Allow consulta el limiter del tenant actual.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	l, err := m.Limiter(ctx)
	if err != nil {
		return Result{}, err
	}
	return l.Allow(ctx, key)
}

// Reset descarta el limiter del tenant (p.ej. tras cambiar sus límites).
// Los contadores en curso siguen en el cache hasta que vence la ventana.
func (m *Manager) Reset(ctx context.Context) (bool, error) {
	_, ok, err := m.reg.Remove(ctx, LimiterKey)
	return ok, err
}

type unlimited struct{}

func (unlimited) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true, Remaining: -1}, nil
}
