// Package db expone el estado del pool SQL del tenant.
package db

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/tenantscope/internal/http/errors"
	"github.com/dropDatabas3/tenantscope/internal/http/helpers"
	"github.com/dropDatabas3/tenantscope/internal/infra/tenantsql"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/tenant"
)

const pingTimeout = 3 * time.Second

type PingResponse struct {
	Status    string `json:"status"`
	Tenant    string `json:"tenant"`
	LatencyMs int64  `json:"latency_ms"`
	Acquired  int32  `json:"acquired"`
	Idle      int32  `json:"idle"`
	Total     int32  `json:"total"`
}

type DBController struct {
	sql *tenantsql.Manager
}

func NewDBController(sql *tenantsql.Manager) *DBController {
	return &DBController{sql: sql}
}

// Ping maneja GET /v1/db/ping
func (c *DBController) Ping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, err := c.sql.Store(ctx)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	start := time.Now()
	if err := store.Ping(pctx); err != nil {
		logger.From(ctx).Warn("tenant db ping failed", logger.Err(err))
		errors.WriteError(w, errors.ErrBadGateway.WithCause(err).WithDetail("database unreachable"))
		return
	}

	id, _ := tenant.IDFromContext(ctx)
	resp := PingResponse{
		Status:    "ok",
		Tenant:    id.String(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if st := store.PoolStats(); st != nil {
		resp.Acquired, resp.Idle, resp.Total = st.AcquiredConns(), st.IdleConns(), st.TotalConns()
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
