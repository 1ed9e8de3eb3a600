package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig describe el cliente de cache de un tenant (o el default).
type CacheConfig struct {
	Driver      string `yaml:"driver"` // memory | redis
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Password    string `yaml:"password"`
	PasswordEnc string `yaml:"password_enc"` // secretbox; tiene prioridad sobre password
	DB          int    `yaml:"db"`
	Prefix      string `yaml:"prefix"`
	DefaultTTL  string `yaml:"default_ttl"`
}

// DatabaseConfig describe el pool SQL de un tenant (o el default).
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	DSNEnc          string `yaml:"dsn_enc"` // secretbox; tiene prioridad sobre dsn
	MaxConns        int32  `yaml:"max_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	PingOnConnect   bool   `yaml:"ping_on_connect"`
}

// RateLimitConfig fixed window por tenant: Max requests cada Window.
// Max negativo en un tenant lo deja sin límite.
type RateLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// TenantConfig overrides por tenant. Campos vacíos heredan de Defaults.
type TenantConfig struct {
	Cache     *CacheConfig     `yaml:"cache"`
	Database  *DatabaseConfig  `yaml:"database"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
}

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env     string `yaml:"app_env"`
		Name    string `yaml:"name"`
		Version string `yaml:"-"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	// Tenancy define de dónde sale el tenant de cada request.
	Tenancy struct {
		Headers    []string `yaml:"headers"`
		QueryParam string   `yaml:"query_param"`
		Subdomain  bool     `yaml:"subdomain"`
		JWT        struct {
			Secret string `yaml:"secret"`
			Claim  string `yaml:"claim"`
		} `yaml:"jwt"`
		// Required: sin tenant resuelto el request falla con 400
		Required bool `yaml:"required"`
	} `yaml:"tenancy"`

	// RateLimit global; los tenants pueden pisar max/window.
	RateLimit struct {
		Enabled         bool `yaml:"enabled"`
		RateLimitConfig `yaml:",inline"`
	} `yaml:"rate_limit"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"` // base64(32 bytes)
	} `yaml:"security"`

	Defaults struct {
		Cache    CacheConfig    `yaml:"cache"`
		Database DatabaseConfig `yaml:"database"`
	} `yaml:"defaults"`

	Tenants map[string]TenantConfig `yaml:"tenants"`
}

// Load lee el YAML en path (si path != ""), aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "tenantscope"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if len(c.Tenancy.Headers) == 0 {
		c.Tenancy.Headers = []string{"X-Tenant-ID", "X-Tenant-Slug"}
	}
	if c.Tenancy.QueryParam == "" {
		c.Tenancy.QueryParam = "tenant"
	}
	if c.Tenancy.JWT.Claim == "" {
		c.Tenancy.JWT.Claim = "tid"
	}
	if c.Defaults.Cache.Driver == "" {
		c.Defaults.Cache.Driver = "memory"
	}
	if c.Defaults.Cache.DefaultTTL == "" {
		c.Defaults.Cache.DefaultTTL = "2m"
	}
	if c.Defaults.Database.MaxConns == 0 {
		c.Defaults.Database.MaxConns = 10
	}
	if c.Defaults.Database.ConnMaxLifetime == "" {
		c.Defaults.Database.ConnMaxLifetime = "30m"
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 120
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Tenants == nil {
		c.Tenants = map[string]TenantConfig{}
	}
}

// CacheFor devuelve la config de cache efectiva del tenant: la del tenant
// pisando los defaults. ok=false si el tenant no está declarado.
func (c *Config) CacheFor(slug string) (CacheConfig, bool) {
	t, ok := c.Tenants[slug]
	if !ok {
		return CacheConfig{}, false
	}
	out := c.Defaults.Cache
	if t.Cache == nil {
		return out, true
	}
	o := t.Cache
	if o.Driver != "" {
		out.Driver = o.Driver
	}
	if o.Host != "" {
		out.Host = o.Host
	}
	if o.Port != 0 {
		out.Port = o.Port
	}
	if o.Password != "" || o.PasswordEnc != "" {
		out.Password, out.PasswordEnc = o.Password, o.PasswordEnc
	}
	if o.DB != 0 {
		out.DB = o.DB
	}
	if o.Prefix != "" {
		out.Prefix = o.Prefix
	}
	if o.DefaultTTL != "" {
		out.DefaultTTL = o.DefaultTTL
	}
	return out, true
}

// DatabaseFor devuelve la config SQL efectiva del tenant. ok=false si el
// tenant no está declarado o no tiene DSN.
func (c *Config) DatabaseFor(slug string) (DatabaseConfig, bool) {
	t, ok := c.Tenants[slug]
	if !ok || t.Database == nil {
		return DatabaseConfig{}, false
	}
	out := c.Defaults.Database
	o := t.Database
	out.DSN, out.DSNEnc = o.DSN, o.DSNEnc
	if o.MaxConns != 0 {
		out.MaxConns = o.MaxConns
	}
	if o.ConnMaxLifetime != "" {
		out.ConnMaxLifetime = o.ConnMaxLifetime
	}
	if o.PingOnConnect {
		out.PingOnConnect = true
	}
	if out.DSN == "" && out.DSNEnc == "" {
		return DatabaseConfig{}, false
	}
	return out, true
}

// RateLimitFor devuelve el límite efectivo del tenant (global pisado por el
// override del tenant, si lo hay).
func (c *Config) RateLimitFor(slug string) RateLimitConfig {
	out := c.RateLimit.RateLimitConfig
	t, ok := c.Tenants[slug]
	if !ok || t.RateLimit == nil {
		return out
	}
	if t.RateLimit.Max != 0 {
		out.Max = t.RateLimit.Max
	}
	if t.RateLimit.Window != 0 {
		out.Window = t.RateLimit.Window
	}
	return out
}

// TenantSlugs devuelve los tenants declarados, ordenados.
func (c *Config) TenantSlugs() []string {
	out := make([]string, 0, len(c.Tenants))
	for k := range c.Tenants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsProd reporta si app_env es prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("SERVER_READ_TIMEOUT"); ok {
		c.Server.ReadTimeout = v
	}
	if v, ok := getEnvDur("SERVER_WRITE_TIMEOUT"); ok {
		c.Server.WriteTimeout = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// LOG / METRICS
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
	if v, ok := getEnvStr("METRICS_PATH"); ok {
		c.Metrics.Path = v
	}

	// TENANCY
	if v, ok := getEnvCSV("TENANCY_HEADERS"); ok {
		c.Tenancy.Headers = v
	}
	if v, ok := getEnvStr("TENANCY_QUERY_PARAM"); ok {
		c.Tenancy.QueryParam = v
	}
	if v, ok := getEnvBool("TENANCY_SUBDOMAIN"); ok {
		c.Tenancy.Subdomain = v
	}
	if v, ok := getEnvStr("TENANCY_JWT_SECRET"); ok {
		c.Tenancy.JWT.Secret = v
	}
	if v, ok := getEnvStr("TENANCY_JWT_CLAIM"); ok {
		c.Tenancy.JWT.Claim = v
	}
	if v, ok := getEnvBool("TENANCY_REQUIRED"); ok {
		c.Tenancy.Required = v
	}

	// RATE LIMIT
	if v, ok := getEnvBool("RATE_LIMIT_ENABLED"); ok {
		c.RateLimit.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LIMIT_MAX"); ok {
		c.RateLimit.Max = v
	}
	if v, ok := getEnvDur("RATE_LIMIT_WINDOW"); ok {
		c.RateLimit.Window = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}

	// DEFAULTS
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Defaults.Cache.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_HOST"); ok {
		c.Defaults.Cache.Host = v
	}
	if v, ok := getEnvInt("REDIS_PORT"); ok {
		c.Defaults.Cache.Port = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Defaults.Cache.Password = v
	}
	if v, ok := getEnvInt("DB_MAX_CONNS"); ok {
		c.Defaults.Database.MaxConns = int32(v)
	}

	// TENANT_DSNS="acme=postgres://...;globex=postgres://..."
	if m, ok := getEnvKVList("TENANT_DSNS", ";"); ok {
		for slug, dsn := range m {
			t := c.Tenants[slug]
			if t.Database == nil {
				t.Database = &DatabaseConfig{}
			}
			t.Database.DSN = dsn
			t.Database.DSNEnc = ""
			c.Tenants[slug] = t
		}
	}
}

// Validate chequea drivers, duraciones y fuentes de tenant.
func (c *Config) Validate() error {
	var errs []error

	checkCache := func(where string, cc CacheConfig) {
		switch cc.Driver {
		case "", "memory":
		case "redis":
			if strings.TrimSpace(cc.Host) == "" {
				errs = append(errs, fmt.Errorf("%s: redis requiere host", where))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: cache driver no soportado %q", where, cc.Driver))
		}
		if cc.DefaultTTL != "" {
			if _, err := time.ParseDuration(cc.DefaultTTL); err != nil {
				errs = append(errs, fmt.Errorf("%s.default_ttl: %w", where, err))
			}
		}
	}
	checkDB := func(where string, dc DatabaseConfig) {
		if dc.ConnMaxLifetime != "" {
			if _, err := time.ParseDuration(dc.ConnMaxLifetime); err != nil {
				errs = append(errs, fmt.Errorf("%s.conn_max_lifetime: %w", where, err))
			}
		}
		if dc.MaxConns < 0 {
			errs = append(errs, fmt.Errorf("%s.max_conns: debe ser >= 0", where))
		}
	}

	checkRate := func(where string, rc RateLimitConfig) {
		if rc.Window < 0 {
			errs = append(errs, fmt.Errorf("%s.window: debe ser >= 0", where))
		}
	}

	checkCache("defaults.cache", c.Defaults.Cache)
	checkRate("rate_limit", c.RateLimit.RateLimitConfig)
	checkDB("defaults.database", c.Defaults.Database)
	for _, slug := range c.TenantSlugs() {
		if strings.TrimSpace(slug) == "" {
			errs = append(errs, errors.New("tenants: slug vacío"))
			continue
		}
		if cc, ok := c.CacheFor(slug); ok {
			checkCache("tenants."+slug+".cache", cc)
		}
		if dc, ok := c.DatabaseFor(slug); ok {
			checkDB("tenants."+slug+".database", dc)
		}
		if t := c.Tenants[slug]; t.RateLimit != nil {
			checkRate("tenants."+slug+".rate_limit", *t.RateLimit)
		}
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path debe empezar con '/': %q", c.Metrics.Path))
	}
	if c.Tenancy.Required && len(c.Tenancy.Headers) == 0 && c.Tenancy.QueryParam == "" &&
		!c.Tenancy.Subdomain && c.Tenancy.JWT.Secret == "" {
		errs = append(errs, errors.New("tenancy.required sin ninguna fuente de tenant configurada"))
	}
	return errors.Join(errs...)
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
