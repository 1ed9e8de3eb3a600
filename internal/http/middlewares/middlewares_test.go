package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/rate"
	"github.com/dropDatabas3/tenantscope/internal/tenant"
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "generated id must be a uuid")
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-id", seen)
}

func TestWithRecover(t *testing.T) {
	h := WithRecover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestWithLogging_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	h := WithRequestID()(WithLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.From(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})))
	req := httptest.NewRequest(http.MethodGet, "/v1/kv/x", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	inside := logs.FilterMessage("inside handler").All()
	require.Len(t, inside, 1)
	assert.Equal(t, "rid-1", inside[0].ContextMap()["request_id"])

	done := logs.FilterMessage("request completed with client error").All()
	require.Len(t, done, 1)
	assert.Equal(t, zapcore.WarnLevel, done[0].Level)
	assert.EqualValues(t, 404, done[0].ContextMap()["status"])
	assert.EqualValues(t, 4, done[0].ContextMap()["bytes"])
}

func TestResolvers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com:8080/x?tenant=q-tenant", nil)
	req.Header.Set("X-Tenant-ID", " h-tenant ")

	assert.Equal(t, "h-tenant", HeaderTenantResolver("")(req))
	assert.Equal(t, "q-tenant", QueryTenantResolver("")(req))
	assert.Equal(t, "acme", SubdomainTenantResolver()(req))

	for _, host := range []string{"example.com", "127.0.0.1:8080", "www.example.com", "[::1]:80"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Host = host
		assert.Empty(t, SubdomainTenantResolver()(r), host)
	}

	chain := ChainResolvers(nil, HeaderTenantResolver("X-Other"), QueryTenantResolver("tenant"))
	assert.Equal(t, "q-tenant", chain(req))
}

func TestBearerClaimResolver(t *testing.T) {
	secret := []byte("test-secret")
	res := BearerClaimResolver(secret, "")

	mk := func(auth string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		return r
	}

	ok := signHS256(t, secret, jwt.MapClaims{"tid": "acme", "exp": time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, "acme", res(mk("Bearer "+ok)))

	expired := signHS256(t, secret, jwt.MapClaims{"tid": "acme", "exp": time.Now().Add(-time.Hour).Unix()})
	assert.Empty(t, res(mk("Bearer "+expired)))

	wrongKey := signHS256(t, []byte("other"), jwt.MapClaims{"tid": "acme"})
	assert.Empty(t, res(mk("Bearer "+wrongKey)))

	assert.Empty(t, res(mk("")))
	assert.Empty(t, res(mk("Basic abc")))

	custom := BearerClaimResolver(secret, "org")
	numeric := signHS256(t, secret, jwt.MapClaims{"org": 42})
	assert.Equal(t, "42", custom(mk("Bearer "+numeric)))

	assert.Empty(t, BearerClaimResolver(nil, "")(mk("Bearer "+ok)))
}

func TestTenantMiddleware(t *testing.T) {
	var got string
	var found bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := tenant.IDFromContext(r.Context())
		got, found = id.String(), ok
		w.WriteHeader(http.StatusNoContent)
	})

	required := NewTenantMiddleware(TenantMiddlewareConfig{}).Handle(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-Slug", "globex")
	rec := httptest.NewRecorder()
	required.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, found)
	assert.Equal(t, "globex", got)

	found = false
	rec = httptest.NewRecorder()
	required.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "TENANT_UNRESOLVED")
	assert.False(t, found, "next must not run")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "../etc")
	rec = httptest.NewRecorder()
	required.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid tenant identifier")
	assert.False(t, found)

	optional := NewTenantMiddleware(TenantMiddlewareConfig{Optional: true}).Handle(next)
	rec = httptest.NewRecorder()
	optional.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, found)
}

func TestTenantMiddleware_UnknownTenant(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})
	declared := map[string]bool{"acme": true}
	h := NewTenantMiddleware(TenantMiddlewareConfig{
		Known: func(slug string) bool { return declared[slug] },
	}).Handle(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "random-7f3a")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "TENANT_NOT_CONFIGURED")
	assert.Equal(t, 1, calls, "next must not run for an undeclared tenant")
}

type stubLimiter struct {
	res  rate.Result
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func TestWithRateLimit(t *testing.T) {
	restore := logger.Replace(zap.NewNop())
	defer restore()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/kv/x", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		return r.WithContext(tenant.WithID(r.Context(), "acme"))
	}

	allowed := &stubLimiter{res: rate.Result{Allowed: true, Remaining: 4, WindowTTL: time.Minute}}
	rec := httptest.NewRecorder()
	WithRateLimit(RateLimitConfig{Limiter: allowed})(next).ServeHTTP(rec, req())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"10.0.0.1"}, allowed.keys)

	denied := &stubLimiter{res: rate.Result{RetryAfter: 7 * time.Second}}
	rec = httptest.NewRecorder()
	WithRateLimit(RateLimitConfig{Limiter: denied})(next).ServeHTTP(rec, req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	// error del limiter => se deja pasar
	failing := &stubLimiter{err: errors.New("redis down")}
	rec = httptest.NewRecorder()
	WithRateLimit(RateLimitConfig{Limiter: failing})(next).ServeHTTP(rec, req())
	assert.Equal(t, http.StatusNoContent, rec.Code)

	unlimited := &stubLimiter{res: rate.Result{Allowed: true, Remaining: -1}}
	rec = httptest.NewRecorder()
	WithRateLimit(RateLimitConfig{Limiter: unlimited})(next).ServeHTTP(rec, req())
	assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	WithRateLimit(RateLimitConfig{})(next).ServeHTTP(rec, req())
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWithRateLimit_SkipsRequestsWithoutTenant(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	lim := &stubLimiter{err: errors.New("tenant unresolved")}
	h := WithRateLimit(RateLimitConfig{Limiter: lim})(next)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scope/objects", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Empty(t, lim.keys, "limiter must not be consulted without a tenant")
	assert.Zero(t, logs.Len())
}
