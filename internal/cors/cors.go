// Package cors checks request origins against a static allow-list.
package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/models"
)

type Handler struct {
	origins map[string]struct{}
	first   string
	methods string
	headers string
	maxAge  string
}

func New(cfg config.CORSConfig) *Handler {
	h := &Handler{
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		maxAge:  strconv.Itoa(cfg.MaxAge),
	}

	for _, o := range cfg.AllowedOrigins {
		h.origins[o] = struct{}{}
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.first = cfg.AllowedOrigins[0]
	}

	return h
}

// IsPreflight reports whether method short-circuits to Preflight
func IsPreflight(method string) bool {
	return method == http.MethodOptions
}

func (h *Handler) IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := h.origins[origin]
	return ok
}

// Preflight answers an OPTIONS request: 204 with the full CORS header set for
// allowed origins, 403 without any CORS header otherwise.
func (h *Handler) Preflight(origin string) *models.Response {
	if !h.IsAllowedOrigin(origin) {
		resp := models.NewResponse(http.StatusForbidden)
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp.Body = []byte("CORS origin not allowed")
		return resp
	}

	resp := models.NewResponse(http.StatusNoContent)
	resp.Header.Set("Access-Control-Allow-Origin", origin)
	resp.Header.Set("Access-Control-Allow-Methods", h.methods)
	resp.Header.Set("Access-Control-Allow-Headers", h.headers)
	resp.Header.Set("Access-Control-Allow-Credentials", "true")
	resp.Header.Set("Access-Control-Max-Age", h.maxAge)
	return resp
}

// ResponseHeaders are attached to every non-preflight response. A disallowed
// origin is still served, but receives the first configured origin so a
// browser will refuse to expose the body to it.
func (h *Handler) ResponseHeaders(origin string) http.Header {
	allow := h.first
	if h.IsAllowedOrigin(origin) {
		allow = origin
	}

	headers := make(http.Header, 2)
	headers.Set("Access-Control-Allow-Origin", allow)
	headers.Set("Access-Control-Allow-Credentials", "true")
	return headers
}

// Apply sets ResponseHeaders on resp
func (h *Handler) Apply(resp *models.Response, origin string) {
	for name, values := range h.ResponseHeaders(origin) {
		resp.Header[name] = values
	}
}
