// Package kv expone el cliente de cache del tenant como un key/value simple.
package kv

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tenantscope/internal/http/errors"
	"github.com/dropDatabas3/tenantscope/internal/http/helpers"
	"github.com/dropDatabas3/tenantscope/internal/infra/tenantcache"
)

// PutRequest es el cuerpo de PUT /v1/kv/{key}.
type PutRequest struct {
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type ValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type KVController struct {
	cache *tenantcache.Manager
}

func NewKVController(cache *tenantcache.Manager) *KVController {
	return &KVController{cache: cache}
}

// Get maneja GET /v1/kv/{key}
func (c *KVController) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	client, err := c.cache.Client(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	v, err := client.Get(r.Context(), key)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, ValueResponse{Key: key, Value: v})
}

// Put maneja PUT /v1/kv/{key}
func (c *KVController) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req PutRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.TTLSeconds < 0 {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("ttl_seconds"))
		return
	}

	client, err := c.cache.Client(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if err := client.Set(r.Context(), key, req.Value, time.Duration(req.TTLSeconds)*time.Second); err != nil {
		errors.WriteError(w, errors.ErrBadGateway.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete maneja DELETE /v1/kv/{key}
func (c *KVController) Delete(w http.ResponseWriter, r *http.Request) {
	client, err := c.cache.Client(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if err := client.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		errors.WriteError(w, errors.ErrBadGateway.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
