package admin

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func (h *AdminAPIHandler) routeEndpoint() *resourceEndpoint[*resource.Route] {
	return &resourceEndpoint[*resource.Route]{
		kind:  "routes",
		store: h.registry.Routes,
		validate: func(r *resource.Route) error {
			return r.Validate()
		},
		checkDeps: func(item *resource.Route) error {
			return h.registry.CheckCreateDependencies("routes", item)
		},
		zero: func() *resource.Route { return &resource.Route{} },
		h:    h,
	}
}

func (h *AdminAPIHandler) registerRouteRoutes(mux *http.ServeMux) {
	h.routeEndpoint().register(mux)
}
