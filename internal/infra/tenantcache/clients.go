package tenantcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// --- Memory Client Implementation ---

type MemoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemoryClient crea un cliente en memoria. defaultTTL 0 => sin expiración.
func NewMemoryClient(prefix string, defaultTTL time.Duration) *MemoryClient {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &MemoryClient{
		prefix: prefix,
		c:      gocache.New(defaultTTL, time.Minute),
	}
}

func (c *MemoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := c.c.Get(c.prefix + key)
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

// Set guarda value; ttl 0 usa el TTL por defecto del cliente.
func (c *MemoryClient) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.c.Set(c.prefix+key, value, ttl)
	return nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.c.Delete(c.prefix + key)
	return nil
}

func (c *MemoryClient) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := c.prefix + key
	if window <= 0 {
		window = gocache.DefaultExpiration
	}
	var (
		n   int64
		err error
	)
	// Un segundo intento cubre el caso de que el item expire entre Add e Increment
	for i := 0; i < 2; i++ {
		_ = c.c.Add(k, int64(0), window) // falla si ya existe
		if n, err = c.c.IncrementInt64(k, 1); err == nil {
			break
		}
	}
	if err != nil {
		return 0, 0, err
	}
	var ttl time.Duration
	if _, exp, ok := c.c.GetWithExpiration(k); ok && !exp.IsZero() {
		ttl = time.Until(exp)
	}
	return n, ttl, nil
}

func (c *MemoryClient) Close() error {
	c.c.Flush()
	return nil
}

func (c *MemoryClient) Ping(context.Context) error {
	return nil
}

func (c *MemoryClient) Stats(context.Context) (map[string]any, error) {
	return map[string]any{
		"driver": "memory",
		"keys":   c.c.ItemCount(),
	}, nil
}

// --- Redis Client Implementation ---

type RedisClient struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

func NewRedisClient(conn *TenantConnection) *RedisClient {
	port := conn.Port
	if port == 0 {
		port = 6379
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", conn.Host, port),
		Password: conn.Password,
		DB:       conn.DB,
	})
	return &RedisClient{
		client:     rdb,
		prefix:     conn.Prefix,
		defaultTTL: conn.DefaultTTL,
	}
}

// Addr devuelve host:port del servidor.
func (c *RedisClient) Addr() string { return c.client.Options().Addr }

func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (c *RedisClient) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *RedisClient) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Incr: INCR + TTL en una transacción; EXPIRE solo en el primer hit.
func (c *RedisClient) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := c.prefix + key
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	if incr.Val() == 1 && window > 0 {
		if err := c.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
		return 1, window, nil
	}
	return incr.Val(), ttl.Val(), nil
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisClient) Stats(ctx context.Context) (map[string]any, error) {
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, err
	}
	var usedMemory string
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory_human:") {
			usedMemory = strings.TrimPrefix(line, "used_memory_human:")
			break
		}
	}

	// DB Size (keys in current DB)
	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}

	ps := c.client.PoolStats()
	return map[string]any{
		"driver":      "redis",
		"keys":        keys,
		"used_memory": usedMemory,
		"pool_total":  ps.TotalConns,
		"pool_idle":   ps.IdleConns,
	}, nil
}
