package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/openapi"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// openapiStatus is one MCPService's last compile outcome, surfaced by
// GET /admin/openapi/status.
type openapiStatus struct {
	ToolCount  int       `json:"tool_count"`
	LastReload time.Time `json:"last_reload"`
	LastError  string    `json:"last_error,omitempty"`
}

// fetchDoc loads an OpenAPI document from a local path or an http(s) URL.
func fetchDoc(path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		resp, err := http.Get(path)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(path)
}

// applyMetas wholesale-replaces the tenant-scoped RouteMeta map for svc,
// merging compiled OpenAPI operations with any explicit Routes the service
// declares directly — an MCPService can use both sources at once.
func (h *AdminAPIHandler) applyMetas(svc *resource.MCPService, compiled *openapi.Result) int {
	metas := make(map[string]*resource.RouteMeta, len(compiled.Metas)+len(svc.Routes))
	for _, m := range compiled.Metas {
		metas[m.OperationID] = m
	}
	for i := range svc.Routes {
		rm := svc.Routes[i]
		metas[rm.OperationID] = &rm
	}
	h.registry.RouteMetas.Replace(svc.ID, metas)
	return len(metas)
}

// reloadOne recompiles the OpenAPI document for a single MCPService and
// swaps its tenant-scoped RouteMeta map wholesale, so a consumer never
// observes a half-updated (tools, metas) pair for that scope.
func (h *AdminAPIHandler) reloadOne(id string) error {
	svc, ok := h.registry.MCPServices.Get(id)
	if !ok {
		return fmt.Errorf("mcp_service %q not found", id)
	}
	if svc.OpenAPIPath == "" {
		n := h.applyMetas(svc, &openapi.Result{})
		h.recordOpenAPIStatus(id, n, nil)
		return nil
	}

	doc, err := fetchDoc(svc.OpenAPIPath)
	if err != nil {
		h.recordOpenAPIStatus(id, 0, err)
		return err
	}

	result, err := openapi.Compile(doc, svc.UpstreamID, nil)
	if err != nil {
		h.recordOpenAPIStatus(id, 0, err)
		return err
	}

	n := h.applyMetas(svc, result)
	h.recordOpenAPIStatus(id, n, nil)
	return nil
}

func (h *AdminAPIHandler) recordOpenAPIStatus(id string, toolCount int, err error) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	if h.openapiStatuses == nil {
		h.openapiStatuses = make(map[string]openapiStatus)
	}
	st := openapiStatus{ToolCount: toolCount, LastReload: time.Now()}
	if err != nil {
		st.LastError = err.Error()
	}
	h.openapiStatuses[id] = st
}

// handleOpenAPIReloadAll recompiles every MCPService with an OpenAPI source.
func (h *AdminAPIHandler) handleOpenAPIReloadAll(w http.ResponseWriter, r *http.Request) {
	var failed []string
	for _, svc := range h.registry.MCPServices.Iter() {
		if err := h.reloadOne(svc.ID); err != nil {
			failed = append(failed, svc.ID+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		h.respondError(w, http.StatusBadGateway, strings.Join(failed, "; "))
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleOpenAPIReloadOne recompiles a single MCPService.
func (h *AdminAPIHandler) handleOpenAPIReloadOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.reloadOne(id); err != nil {
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded", "id": id})
}

// handleOpenAPIStatus returns the per-service compile counts.
func (h *AdminAPIHandler) handleOpenAPIStatus(w http.ResponseWriter, r *http.Request) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	out := make(map[string]openapiStatus, len(h.openapiStatuses))
	for k, v := range h.openapiStatuses {
		out[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleOpenAPIHealth is a bare liveness probe.
func (h *AdminAPIHandler) handleOpenAPIHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
