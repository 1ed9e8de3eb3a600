package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tenantscope/internal/config"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
)

const appYAML = `
server:
  addr: "127.0.0.1:0"
  shutdown_timeout: 2s
metrics:
  enabled: true
tenancy:
  headers: ["X-Tenant-ID"]
  jwt:
    secret: "jwt-secret"
  required: true
security:
  secretbox_master_key: "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
defaults:
  cache:
    driver: memory
tenants:
  acme: {}
  globex: {}
`

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	restore := logger.Replace(zap.NewNop())
	t.Cleanup(restore)

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	cfg, err := config.Load(p)
	require.NoError(t, err)
	cfg.App.Version = "v-test"
	return cfg
}

func do(h http.Handler, method, target string, hdr map[string]string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_WiresEndToEnd(t *testing.T) {
	a, err := New(loadConfig(t, appYAML))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.Metrics)

	acme := map[string]string{"X-Tenant-ID": "acme"}
	rec := do(a.Handler, http.MethodPut, "/v1/kv/k", acme, `{"value":"v1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(a.Handler, http.MethodGet, "/v1/kv/k", acme, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"v1"`)

	// otro tenant, otro cliente
	rec = do(a.Handler, http.MethodGet, "/v1/kv/k", map[string]string{"X-Tenant-ID": "globex"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// tenancy.required => 400 sin tenant
	rec = do(a.Handler, http.MethodGet, "/v1/kv/k", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// sin database configurada
	rec = do(a.Handler, http.MethodGet, "/v1/db/ping", acme, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(a.Handler, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v-test", rec.Header().Get("X-Service-Version"))

	rec = do(a.Handler, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenantscope_tenants 2")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Equal(t, 2, a.Registry.Stats().Objects)
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := loadConfig(t, strings.Replace(appYAML, "enabled: true", "enabled: false", 1))
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.Metrics)
	rec := do(a.Handler, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_RateLimitPerTenant(t *testing.T) {
	cfg := loadConfig(t, appYAML)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Max = 2
	cfg.RateLimit.Window = time.Hour
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.Rate)

	acme := map[string]string{"X-Tenant-ID": "acme"}
	for i := 0; i < 2; i++ {
		rec := do(a.Handler, http.MethodGet, "/v1/scope/objects", acme, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(a.Handler, http.MethodGet, "/v1/scope/objects", acme, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// globex tiene su propio contador
	rec = do(a.Handler, http.MethodGet, "/v1/scope/objects", map[string]string{"X-Tenant-ID": "globex"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_UndeclaredTenantRejected(t *testing.T) {
	cfg := loadConfig(t, appYAML)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Max = 100
	cfg.RateLimit.Window = time.Hour
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	for i := 0; i < 5; i++ {
		rec := do(a.Handler, http.MethodGet, "/v1/kv/k", map[string]string{"X-Tenant-ID": fmt.Sprintf("rand-%d", i)}, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "TENANT_NOT_CONFIGURED")
	}
	assert.Zero(t, a.Registry.Stats().Tenants)

	rec := do(a.Handler, http.MethodGet, "/v1/scope/objects", map[string]string{"X-Tenant-ID": "acme"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestKnownTenants(t *testing.T) {
	cfg := loadConfig(t, appYAML)
	known := KnownTenants(cfg)
	require.NotNil(t, known)
	assert.True(t, known("acme"))
	assert.False(t, known("initech"))

	cfg.Tenants = nil
	assert.Nil(t, KnownTenants(cfg), "without declared tenants every slug passes")
}

func TestNew_InvalidMasterKey(t *testing.T) {
	cfg := loadConfig(t, appYAML)
	cfg.Security.SecretBoxMasterKey = "short"
	_, err := New(cfg)
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestTenantResolver_Order(t *testing.T) {
	cfg := loadConfig(t, appYAML)
	cfg.Tenancy.QueryParam = "t"
	cfg.Tenancy.Subdomain = true
	res := TenantResolver(cfg)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tid": "from-jwt"}).
		SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://sub.example.com/x?t=from-query", nil)
	assert.Equal(t, "from-query", res(req))

	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, "from-jwt", res(req))

	req.Header.Set("X-Tenant-ID", "from-header")
	assert.Equal(t, "from-header", res(req))

	bare := httptest.NewRequest(http.MethodGet, "http://sub.example.com/x", nil)
	assert.Equal(t, "sub", res(bare))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	a, err := New(loadConfig(t, appYAML))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, a.Registry.Closed())
	assert.NoError(t, a.Close(), "close is idempotent")
}
