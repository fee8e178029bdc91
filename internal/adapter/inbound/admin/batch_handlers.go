package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// batchOp is one entry of a POST /admin/batch request body.
type batchOp struct {
	Op   string          `json:"op"`   // "put" or "delete"
	Type string          `json:"type"` // "routes", "upstreams", "services", "global_rules", "mcp_services", "ssls"
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

type batchRequest struct {
	DryRun bool      `json:"dry_run,omitempty"`
	Ops    []batchOp `json:"ops"`
}

type batchOpResult struct {
	Op      string `json:"op"`
	Type    string `json:"type"`
	ID      string `json:"id"`
	Status  string `json:"status"` // "ok" or "error"
	Message string `json:"message,omitempty"`
}

type batchResponse struct {
	Results []batchOpResult `json:"results"`
	Applied int             `json:"applied"`
	Total   int             `json:"total"`
}

// applyBatchOp validates and, unless dryRun, persists a single batch entry.
// Upstream ids created earlier in the same batch are visible to later
// entries since each op runs against the live registry in order.
func (h *AdminAPIHandler) applyBatchOp(op batchOp, dryRun bool) error {
	switch op.Type {
	case "upstreams":
		return applyTyped(h.registry.Upstreams, op, dryRun, func() *resource.Upstream { return &resource.Upstream{} },
			func(u *resource.Upstream) error { return u.Validate() }, nil)
	case "routes":
		return applyTyped(h.registry.Routes, op, dryRun, func() *resource.Route { return &resource.Route{} },
			func(r *resource.Route) error { return r.Validate() },
			func(item *resource.Route) error { return h.registry.CheckCreateDependencies("routes", item) })
	case "services":
		return applyTyped(h.registry.Services, op, dryRun, func() *resource.Service { return &resource.Service{} },
			func(s *resource.Service) error { return s.Validate() },
			func(item *resource.Service) error { return h.registry.CheckCreateDependencies("services", item) })
	case "global_rules":
		return applyTyped(h.registry.GlobalRules, op, dryRun, func() *resource.GlobalRule { return &resource.GlobalRule{} },
			func(g *resource.GlobalRule) error { return g.Validate() }, nil)
	case "mcp_services":
		return applyTyped(h.registry.MCPServices, op, dryRun, func() *resource.MCPService { return &resource.MCPService{} },
			func(m *resource.MCPService) error { return m.Validate() },
			func(item *resource.MCPService) error { return h.registry.CheckCreateDependencies("mcp_services", item) })
	case "ssls":
		return applyTyped(h.registry.SSLs, op, dryRun, func() *resource.SSL { return &resource.SSL{} },
			func(s *resource.SSL) error { return s.Validate() }, nil)
	default:
		return fmt.Errorf("unknown resource type %q", op.Type)
	}
}

// applyTyped runs one batch op's put/delete against a specific Store[T],
// generic over resource kind the same way resourceEndpoint[T] is for the
// single-resource admin routes.
func applyTyped[T resource.Identifiable](
	store *resource.Store[T],
	op batchOp,
	dryRun bool,
	zero func() T,
	validate func(T) error,
	checkDeps func(item T) error,
) error {
	switch op.Op {
	case "delete":
		if op.ID == "" {
			return fmt.Errorf("delete requires id")
		}
		if !dryRun {
			store.Remove(op.ID)
		}
		return nil
	case "put":
		item := zero()
		if err := json.Unmarshal(op.Data, item); err != nil {
			return fmt.Errorf("invalid data: %w", err)
		}
		if err := validate(item); err != nil {
			return err
		}
		if checkDeps != nil {
			if err := checkDeps(item); err != nil {
				return err
			}
		}
		if dryRun {
			return nil
		}
		store.Insert(item)
		return nil
	default:
		return fmt.Errorf("unknown op %q, want put or delete", op.Op)
	}
}

// handleBatch processes an ordered list of resource mutations as one
// request, reporting partial success.
func (h *AdminAPIHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		h.respondError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	if !h.checkAPIKey(r) {
		h.respondError(w, http.StatusUnauthorized, "invalid or missing x-api-key")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	resp := batchResponse{Total: len(req.Ops)}
	for _, op := range req.Ops {
		res := batchOpResult{Op: op.Op, Type: op.Type, ID: op.ID, Status: "ok"}
		if err := h.applyBatchOp(op, req.DryRun); err != nil {
			res.Status = "error"
			res.Message = err.Error()
		} else {
			resp.Applied++
		}
		resp.Results = append(resp.Results, res)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *AdminAPIHandler) registerBatchRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/batch", h.handleBatch)
}
