// Package health contiene el controller para health checks.
package health

import (
	"net/http"

	"github.com/dropDatabas3/tenantscope/internal/http/helpers"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// Response es el cuerpo de GET /readyz.
type Response struct {
	Status  string `json:"status"` // ready | unavailable
	Version string `json:"version,omitempty"`
	Tenants int    `json:"tenants"`
	Objects int    `json:"objects"`
}

// HealthController maneja las rutas de health check.
type HealthController struct {
	registry *tenantscope.Registry
	version  string
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(registry *tenantscope.Registry, version string) *HealthController {
	return &HealthController{registry: registry, version: version}
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := Response{Status: "ready", Version: c.version}
	status := http.StatusOK
	if c.registry == nil || c.registry.Closed() {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		st := c.registry.Stats()
		resp.Tenants, resp.Objects = st.Tenants, st.Objects
	}

	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	log.Debug("health check completed", logger.String("status", resp.Status))
	helpers.WriteJSON(w, status, resp)
}
