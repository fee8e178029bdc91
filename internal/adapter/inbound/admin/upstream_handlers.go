package admin

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func (h *AdminAPIHandler) upstreamEndpoint() *resourceEndpoint[*resource.Upstream] {
	return &resourceEndpoint[*resource.Upstream]{
		kind:  "upstreams",
		store: h.registry.Upstreams,
		validate: func(u *resource.Upstream) error {
			return u.Validate()
		},
		referrers: func(id string) []string {
			return h.registry.Referrers("upstreams", id)
		},
		zero: func() *resource.Upstream { return &resource.Upstream{} },
		h:    h,
	}
}

func (h *AdminAPIHandler) registerUpstreamRoutes(mux *http.ServeMux) {
	h.upstreamEndpoint().register(mux)
}
