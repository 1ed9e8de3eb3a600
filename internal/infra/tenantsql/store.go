package tenantsql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store envuelve el pool de un tenant. Implementa io.Closer para que el
// registry lo cierre en su teardown.
type Store struct{ pool *pgxpool.Pool }

// Pool expone el pool interno.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// PoolStats devuelve un snapshot del estado del pool (puede ser nil si el pool no está inicializado).
func (s *Store) PoolStats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
