// Package scope expone los objetos que el registry guarda para el tenant del request.
package scope

import (
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tenantscope/internal/http/errors"
	"github.com/dropDatabas3/tenantscope/internal/http/helpers"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/tenant"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// ListResponse es el cuerpo de GET /v1/scope/objects.
type ListResponse struct {
	Tenant string                  `json:"tenant"`
	Keys   []tenantscope.ObjectKey `json:"keys"`
}

// ScopeController lista y desaloja objetos del tenant actual.
type ScopeController struct {
	registry *tenantscope.Registry
}

func NewScopeController(registry *tenantscope.Registry) *ScopeController {
	return &ScopeController{registry: registry}
}

// List maneja GET /v1/scope/objects
func (c *ScopeController) List(w http.ResponseWriter, r *http.Request) {
	keys, err := c.registry.Keys(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	id, _ := tenant.IDFromContext(r.Context())
	helpers.WriteJSON(w, http.StatusOK, ListResponse{Tenant: id.String(), Keys: keys})
}

// Evict maneja DELETE /v1/scope/objects/*. La key puede contener '/'.
// Si el objeto implementa io.Closer se cierra.
func (c *ScopeController) Evict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("key"))
		return
	}
	key := tenantscope.ObjectKey(raw)

	obj, ok, err := c.registry.Remove(ctx, key)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if !ok {
		errors.WriteError(w, errors.ErrNotFound.WithDetail(raw))
		return
	}

	closed := false
	if cl, isCloser := obj.(io.Closer); isCloser {
		closed = true
		if cerr := cl.Close(); cerr != nil {
			logger.From(ctx).Warn("close evicted object", logger.ObjectKey(raw), logger.Err(cerr))
		}
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"evicted": raw, "closed": closed})
}
