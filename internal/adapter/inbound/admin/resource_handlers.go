package admin

import (
	"encoding/json"
	"net/http"

	"github.com/alexedwards/argon2id"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// resourceEndpoint wires one resource kind's PUT/GET/DELETE handlers onto a
// Store[T], running the standard admin validation pipeline: content-type
// and api-key checks, then field validators, then a cross-resource
// dependency check, then persist, then rebuild hooks (the Store's own
// OnChange mechanism).
type resourceEndpoint[T resource.Identifiable] struct {
	kind      string
	store     *resource.Store[T]
	validate  func(T) error
	checkDeps func(item T) error
	referrers func(id string) []string
	zero      func() T
	h         *AdminAPIHandler
}

func (e *resourceEndpoint[T]) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, ok := e.store.Get(id)
	if !ok {
		e.h.respondError(w, http.StatusNotFound, e.kind+" "+id+" not found")
		return
	}
	e.h.respondJSON(w, http.StatusOK, item)
}

func (e *resourceEndpoint[T]) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		e.h.respondError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	if !e.h.checkAPIKey(r) {
		e.h.respondError(w, http.StatusUnauthorized, "invalid or missing x-api-key")
		return
	}

	item := e.zero()
	if err := json.NewDecoder(r.Body).Decode(item); err != nil {
		e.h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := e.validate(item); err != nil {
		e.h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if e.checkDeps != nil {
		if err := e.checkDeps(item); err != nil {
			e.h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	e.store.Insert(item)
	e.h.respondJSON(w, http.StatusOK, item)
}

func (e *resourceEndpoint[T]) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !e.h.checkAPIKey(r) {
		e.h.respondError(w, http.StatusUnauthorized, "invalid or missing x-api-key")
		return
	}

	id := r.PathValue("id")
	if e.referrers != nil {
		if refs := e.referrers(id); len(refs) > 0 {
			e.h.respondError(w, http.StatusBadRequest, "referenced by "+joinRefs(refs))
			return
		}
	}
	e.store.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func joinRefs(refs []string) string {
	out := refs[0]
	for _, r := range refs[1:] {
		out += ", " + r
	}
	return out
}

// register mounts GET/PUT/DELETE for this endpoint under /admin/{kind}/{id}
// onto mux.
func (e *resourceEndpoint[T]) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/"+e.kind+"/{id}", e.handleGet)
	mux.HandleFunc("PUT /admin/"+e.kind+"/{id}", e.handlePut)
	mux.HandleFunc("DELETE /admin/"+e.kind+"/{id}", e.handleDelete)
}

// checkAPIKey validates the optional x-api-key header against the
// configured admin API key's argon2id hash. An unconfigured key disables
// the check (localhost-only access is enforced upstream by
// adminAuthMiddleware).
func (h *AdminAPIHandler) checkAPIKey(r *http.Request) bool {
	if h.apiKeyHash == "" {
		return true
	}
	provided := r.Header.Get("x-api-key")
	if provided == "" {
		return false
	}
	match, err := argon2id.ComparePasswordAndHash(provided, h.apiKeyHash)
	if err != nil {
		return false
	}
	return match
}
