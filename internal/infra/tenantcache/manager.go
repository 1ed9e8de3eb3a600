package tenantcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/tenantscope/internal/config"
	"github.com/dropDatabas3/tenantscope/internal/security/secretbox"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

var (
	ErrNoCacheForTenant      = errors.New("no cache configured for tenant")
	ErrResolverNotConfigured = errors.New("tenant cache resolver not configured")
	ErrRegistryRequired      = errors.New("tenant cache manager requires a registry")
	ErrNotFound              = errors.New("cache: key not found")
)

// TenantConnection representa la configuración mínima necesaria para conectar al cache.
type TenantConnection struct {
	Driver     string
	Host       string
	Port       int
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// ConnResolver resuelve la configuración de conexión para un tenant.
type ConnResolver func(ctx context.Context, tenant tenantscope.TenantID) (*TenantConnection, error)

// CacheClient define la interfaz mínima que debe cumplir un cliente de cache.
type CacheClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr suma 1 al contador key; el primer hit fija la expiración en window.
	// Devuelve los hits acumulados y el TTL restante.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
}

// ClientKey es la key bajo la que se guarda el cliente de cada tenant en el registry.
var ClientKey = tenantscope.KeyFor[CacheClient]("cache")

// Config permite personalizar la instancia del Manager.
type Config struct {
	Registry *tenantscope.Registry
	Resolve  ConnResolver
}

// Manager administra un cliente de cache por tenant. La unicidad y el
// aislamiento entre tenants los da el registry.
type Manager struct {
	reg     *tenantscope.Registry
	resolve ConnResolver
}

// New crea un nuevo Manager con la configuración indicada.
func New(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, ErrRegistryRequired
	}
	if cfg.Resolve == nil {
		return nil, ErrResolverNotConfigured
	}
	return &Manager{reg: cfg.Registry, resolve: cfg.Resolve}, nil
}

// ConfigResolver arma las conexiones a partir de la config: tenants.<slug>.cache
// sobre defaults.cache. Los passwords cifrados se abren con box.
func ConfigResolver(cfg *config.Config, box *secretbox.Box) ConnResolver {
	return func(_ context.Context, tenant tenantscope.TenantID) (*TenantConnection, error) {
		cc, ok := cfg.CacheFor(tenant.String())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoCacheForTenant, tenant)
		}
		password, err := box.OpenOr(cc.Password, cc.PasswordEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt cache password for %s: %w", tenant, err)
		}
		var ttl time.Duration
		if cc.DefaultTTL != "" {
			if ttl, err = time.ParseDuration(cc.DefaultTTL); err != nil {
				return nil, fmt.Errorf("cache default_ttl for %s: %w", tenant, err)
			}
		}
		driver := strings.ToLower(strings.TrimSpace(cc.Driver))
		if driver == "" {
			driver = "memory"
		}
		return &TenantConnection{
			Driver:     driver,
			Host:       cc.Host,
			Port:       cc.Port,
			Password:   password,
			DB:         cc.DB,
			Prefix:     cc.Prefix,
			DefaultTTL: ttl,
		}, nil
	}
}

// Client devuelve (o crea) el cliente de cache del tenant actual.
func (m *Manager) Client(ctx context.Context) (CacheClient, error) {
	return tenantscope.GetAs(ctx, m.reg, ClientKey, m.createClient)
}

func (m *Manager) createClient(ctx context.Context) (CacheClient, error) {
	tenant, _ := tenantscope.CurrentTenant(ctx)
	conn, err := m.resolve(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCacheForTenant, tenant)
	}

	switch conn.Driver {
	case "memory", "":
		return NewMemoryClient(conn.Prefix, conn.DefaultTTL), nil
	case "redis":
		return NewRedisClient(conn), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", conn.Driver)
	}
}

// Evict quita el cliente del tenant actual y lo cierra. El próximo Client
// construye uno nuevo (p.ej. después de rotar credenciales). Con driver memory
// cerrar vacía los datos, incluidos los contadores del rate limiter del tenant.
func (m *Manager) Evict(ctx context.Context) (bool, error) {
	client, ok, err := tenantscope.RemoveAs[CacheClient](ctx, m.reg, ClientKey)
	if err != nil || !ok {
		return ok, err
	}
	return true, client.Close()
}

// Stats devuelve las estadísticas del cliente del tenant actual.
func (m *Manager) Stats(ctx context.Context) (map[string]any, error) {
	client, err := m.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Stats(ctx)
}
