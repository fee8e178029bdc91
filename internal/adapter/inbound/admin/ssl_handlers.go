package admin

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func (h *AdminAPIHandler) sslEndpoint() *resourceEndpoint[*resource.SSL] {
	return &resourceEndpoint[*resource.SSL]{
		kind:  "ssls",
		store: h.registry.SSLs,
		validate: func(s *resource.SSL) error {
			return s.Validate()
		},
		zero: func() *resource.SSL { return &resource.SSL{} },
		h:    h,
	}
}

func (h *AdminAPIHandler) registerSSLRoutes(mux *http.ServeMux) {
	h.sslEndpoint().register(mux)
}
