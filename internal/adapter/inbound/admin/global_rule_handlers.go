package admin

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func (h *AdminAPIHandler) globalRuleEndpoint() *resourceEndpoint[*resource.GlobalRule] {
	return &resourceEndpoint[*resource.GlobalRule]{
		kind:  "global_rules",
		store: h.registry.GlobalRules,
		validate: func(g *resource.GlobalRule) error {
			return g.Validate()
		},
		zero: func() *resource.GlobalRule { return &resource.GlobalRule{} },
		h:    h,
	}
}

func (h *AdminAPIHandler) registerGlobalRuleRoutes(mux *http.ServeMux) {
	h.globalRuleEndpoint().register(mux)
}
