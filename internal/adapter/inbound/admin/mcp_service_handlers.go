package admin

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func (h *AdminAPIHandler) mcpServiceEndpoint() *resourceEndpoint[*resource.MCPService] {
	return &resourceEndpoint[*resource.MCPService]{
		kind:  "mcp_services",
		store: h.registry.MCPServices,
		validate: func(m *resource.MCPService) error {
			return m.Validate()
		},
		checkDeps: func(item *resource.MCPService) error {
			return h.registry.CheckCreateDependencies("mcp_services", item)
		},
		zero: func() *resource.MCPService { return &resource.MCPService{} },
		h:    h,
	}
}

func (h *AdminAPIHandler) registerMCPServiceRoutes(mux *http.ServeMux) {
	h.mcpServiceEndpoint().register(mux)
}
