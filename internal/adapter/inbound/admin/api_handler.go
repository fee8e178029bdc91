// Package admin provides the gateway's resource-management API: CRUD over
// routes, upstreams, services, global rules, MCP services and SSL certs,
// plus OpenAPI reload and batch-apply.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// AdminAPIHandler serves the admin resource-management API over the
// process-wide resource Registry. Unlike the runtime data plane, every
// handler here runs synchronously against the Registry's stores — there is
// no separate admin-side cache to keep warm.
type AdminAPIHandler struct {
	registry *resource.Registry
	// apiKeyHash is the argon2id PHC-format hash of the configured x-api-key
	// value, computed once at construction so checkAPIKey never compares the
	// raw secret directly. Empty disables the check.
	apiKeyHash string
	logger     *slog.Logger
	startTime  time.Time

	statusMu        sync.Mutex
	openapiStatuses map[string]openapiStatus
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithRegistry sets the resource registry the admin API mutates.
func WithRegistry(r *resource.Registry) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.registry = r }
}

// WithAPIKey sets the x-api-key value required of mutating requests. An
// empty key disables the check. The key is hashed immediately with
// argon2id so the handler never holds the cleartext secret.
func WithAPIKey(key string) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		if key == "" {
			h.apiKeyHash = ""
			return
		}
		hash, err := argon2id.CreateHash(key, argon2id.DefaultParams)
		if err != nil {
			// DefaultParams always produces a valid hash; this only trips on
			// an argon2id internal invariant violation.
			panic("admin: failed to hash api key: " + err.Error())
		}
		h.apiKeyHash = hash
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// WithStartTime sets the server start time for uptime calculation.
func WithStartTime(t time.Time) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.startTime = t }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger:          slog.Default(),
		startTime:       time.Now().UTC(),
		openapiStatuses: make(map[string]openapiStatus),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = resource.NewRegistry()
	}
	return h
}

// Routes returns an http.Handler with every admin API route registered,
// wrapped with the localhost-only auth, rate-limit and CSP middleware chain
// (no CSRF middleware; see below).
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	h.registerUpstreamRoutes(mux)
	h.registerRouteRoutes(mux)
	h.registerServiceRoutes(mux)
	h.registerGlobalRuleRoutes(mux)
	h.registerMCPServiceRoutes(mux)
	h.registerSSLRoutes(mux)
	h.registerBatchRoutes(mux)

	mux.HandleFunc("POST /admin/openapi/reload", h.handleOpenAPIReloadAll)
	mux.HandleFunc("POST /admin/openapi/reload/{id}", h.handleOpenAPIReloadOne)
	mux.HandleFunc("GET /admin/openapi/status", h.handleOpenAPIStatus)
	mux.HandleFunc("GET /admin/openapi/health", h.handleOpenAPIHealth)

	// CSRF protection is a browser-session concern (double-submit cookie);
	// this API is authenticated by x-api-key header, which a CSRF-forged
	// request cannot supply, so the chain omits csrfMiddleware here. It
	// stays in place (and under test) for the cookie-authenticated HTML
	// admin UI this package used to serve.
	authed := h.adminAuthMiddleware(mux)
	rateLimited := apiRateLimitMiddleware(60, time.Minute, authed)
	return cspMiddleware(rateLimited)
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
func (h *AdminAPIHandler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
func (h *AdminAPIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
