package middlewares

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/tenantscope/internal/http/errors"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/rate"
	"github.com/dropDatabas3/tenantscope/internal/tenant"
)

// RateLimiter define la interfaz mínima para un rate limiter.
// rate.Manager la cumple con un limiter por tenant.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (rate.Result, error)
}

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPOnlyRateKey genera una clave basada solo en IP. El tenant ya separa los
// contadores, así que la IP alcanza.
func IPOnlyRateKey(r *http.Request) string {
	return clientIP(r)
}

// RateLimitConfig configura el comportamiento del middleware de rate limiting.
type RateLimitConfig struct {
	Limiter RateLimiter
	KeyFunc RateKeyFunc
}

// WithRateLimit crea un middleware de rate limiting. Va después del middleware
// de tenant: el limiter se elige según el tenant del contexto. Los requests
// sin tenant (tenancy opcional) no se limitan.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		// Si no hay limiter, no hacemos nada
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPOnlyRateKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := tenant.IDFromContext(r.Context()); !ok {
				next.ServeHTTP(w, r)
				return
			}
			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				// En caso de error del limiter, permitimos el request
				logger.From(r.Context()).Warn("rate limit error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}

			// Remaining < 0: tenant sin límite
			if res.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}
