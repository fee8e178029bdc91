package admin

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func (h *AdminAPIHandler) serviceEndpoint() *resourceEndpoint[*resource.Service] {
	return &resourceEndpoint[*resource.Service]{
		kind:  "services",
		store: h.registry.Services,
		validate: func(s *resource.Service) error {
			return s.Validate()
		},
		checkDeps: func(item *resource.Service) error {
			return h.registry.CheckCreateDependencies("services", item)
		},
		referrers: func(id string) []string {
			return h.registry.Referrers("services", id)
		},
		zero: func() *resource.Service { return &resource.Service{} },
		h:    h,
	}
}

func (h *AdminAPIHandler) registerServiceRoutes(mux *http.ServeMux) {
	h.serviceEndpoint().register(mux)
}
