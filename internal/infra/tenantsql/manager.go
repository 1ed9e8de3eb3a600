package tenantsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tenantscope/internal/config"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/security/secretbox"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

var (
	ErrNoDBForTenant         = errors.New("no database configured for tenant")
	ErrResolverNotConfigured = errors.New("tenant resolver not configured")
	ErrRegistryRequired      = errors.New("tenant sql manager requires a registry")
)

// IsNoDBForTenant indicates whether the error means a tenant lacks DB configuration.
func IsNoDBForTenant(err error) bool { return errors.Is(err, ErrNoDBForTenant) }

// TenantConnection representa la configuración mínima necesaria para abrir un pool.
type TenantConnection struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
	PingOnConnect   bool
}

// ConnResolver resuelve la configuración de conexión para un tenant.
type ConnResolver func(ctx context.Context, tenant tenantscope.TenantID) (*TenantConnection, error)

// Config permite personalizar la instancia del Manager.
type Config struct {
	Registry *tenantscope.Registry
	Resolve  ConnResolver
}

// PoolStat es un snapshot del estado de un pool específico.
type PoolStat struct {
	Tenant   string
	Acquired int32
	Idle     int32
	Total    int32
}

// pingTimeout acota el ping inicial; el ctx del factory no trae cancelación.
const pingTimeout = 5 * time.Second

// StoreKey es la key del pool de cada tenant en el registry.
var StoreKey = tenantscope.KeyFor[Store]("pg")

// Manager administra un pool pgx por tenant sobre el registry: el pool se
// abre en el primer uso y queda compartido por todos los requests del tenant.
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

// ConfigResolver arma las conexiones desde tenants.<slug>.database. El DSN
// cifrado (dsn_enc) tiene prioridad y se abre con box.
func ConfigResolver(cfg *config.Config, box *secretbox.Box) ConnResolver {
	return func(_ context.Context, tenant tenantscope.TenantID) (*TenantConnection, error) {
		dc, ok := cfg.DatabaseFor(tenant.String())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoDBForTenant, tenant)
		}
		dsn, err := box.OpenOr(dc.DSN, dc.DSNEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt dsn for %s: %w", tenant, err)
		}
		var lifetime time.Duration
		if dc.ConnMaxLifetime != "" {
			if lifetime, err = time.ParseDuration(dc.ConnMaxLifetime); err != nil {
				return nil, fmt.Errorf("conn_max_lifetime for %s: %w", tenant, err)
			}
		}
		return &TenantConnection{
			DSN:             dsn,
			MaxConns:        dc.MaxConns,
			ConnMaxLifetime: lifetime,
			PingOnConnect:   dc.PingOnConnect,
		}, nil
	}
}

// Store devuelve (o crea) el store del tenant actual.
func (m *Manager) Store(ctx context.Context) (*Store, error) {
	return tenantscope.GetAs(ctx, m.reg, StoreKey, m.createStore)
}

// Pool devuelve el pool pgx del tenant actual.
func (m *Manager) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	s, err := m.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Pool(), nil
}

func (m *Manager) createStore(ctx context.Context) (*Store, error) {
	tenant, _ := tenantscope.CurrentTenant(ctx)
	conn, err := m.resolve(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if conn == nil || strings.TrimSpace(conn.DSN) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDBForTenant, tenant)
	}

	pcfg, err := parsePoolConfig(conn)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenant, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: open pool: %w", tenant, err)
	}

	log := logger.From(ctx).With(logger.Component("tenantsql"), logger.TenantID(tenant.String()))
	if conn.PingOnConnect {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := pool.Ping(pctx)
		cancel()
		if err != nil {
			pool.Close()
			log.Warn("tenant pg pool ping failed", logger.Err(err))
			return nil, fmt.Errorf("tenant %s: ping: %w", tenant, err)
		}
	}

	log.Info("tenant pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	return &Store{pool: pool}, nil
}

// parsePoolConfig aplica los límites del tenant sobre el DSN.
func parsePoolConfig(conn *TenantConnection) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(conn.DSN)
	if err != nil {
		return nil, err
	}
	if conn.MaxConns > 0 {
		pcfg.MaxConns = conn.MaxConns
	}
	if conn.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = conn.ConnMaxLifetime
		pcfg.MaxConnIdleTime = conn.ConnMaxLifetime
	}
	if pcfg.MaxConns <= 0 {
		pcfg.MaxConns = 5
	}
	return pcfg, nil
}

// Evict quita el pool del tenant actual y lo cierra.
func (m *Manager) Evict(ctx context.Context) (bool, error) {
	s, ok, err := tenantscope.RemoveAs[*Store](ctx, m.reg, StoreKey)
	if err != nil || !ok {
		return ok, err
	}
	return true, s.Close()
}

// PoolCount retorna el número de pools activos.
func (m *Manager) PoolCount() int {
	return len(m.reg.Snapshot(StoreKey))
}

// Stats devuelve un snapshot con los stats actuales de cada pool.
func (m *Manager) Stats() map[string]PoolStat {
	snap := m.reg.Snapshot(StoreKey)
	out := make(map[string]PoolStat, len(snap))
	for tenant, obj := range snap {
		s, ok := obj.(*Store)
		if !ok {
			continue
		}
		if stat := s.PoolStats(); stat != nil {
			out[tenant.String()] = PoolStat{
				Tenant:   tenant.String(),
				Acquired: stat.AcquiredConns(),
				Idle:     stat.IdleConns(),
				Total:    stat.TotalConns(),
			}
		}
	}
	return out
}
