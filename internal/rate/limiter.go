// Package rate implementa rate limiting fixed window por tenant sobre el
// cliente de cache del propio tenant (memoria o redis).
package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dropDatabas3/tenantscope/internal/infra/tenantcache"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Counter es lo que el limiter necesita del cache del tenant.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// CounterFunc obtiene el contador en cada llamada, así un cliente de cache
// desalojado y reconstruido se toma sin reiniciar el limiter.
type CounterFunc func(ctx context.Context) (Counter, error)

// FixedWindow: fixed window sencillo (INCR + EXPIRE).
type FixedWindow struct {
	counter CounterFunc
	Prefix  string
	Max     int64
	Window  time.Duration
}

func NewFixedWindow(counter CounterFunc, prefix string, max int, window time.Duration) *FixedWindow {
	if prefix == "" {
		prefix = "rl:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{
		counter: counter,
		Prefix:  prefix,
		Max:     int64(max),
		Window:  window,
	}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	c, err := l.counter(ctx)
	if err != nil {
		return Result{}, err
	}

	winStart := time.Now().UTC().Truncate(l.Window)
	counterKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	hits, ttl, err := c.Incr(ctx, counterKey, l.Window)
	if err != nil {
		return Result{}, err
	}

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Duration(math.Ceil(l.Window.Seconds())) * time.Second
		}
	}
	return res, nil
}

// CacheCounter usa el cliente de cache del tenant del contexto. Con driver
// memory los contadores se pierden cuando ese cliente se desaloja
// (tenantcache.Manager.Evict); con redis sobreviven en el servidor.
func CacheCounter(m *tenantcache.Manager) CounterFunc {
	return func(ctx context.Context) (Counter, error) {
		return m.Client(ctx)
	}
}
