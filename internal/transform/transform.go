// Package transform stamps gateway headers onto upstream responses.
package transform

import (
	"strconv"

	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/models"
)

type Transformer struct {
	apiVersion   string
	gatewayName  string
	staticSeg    string
	staticMaxAge int
}

func New(cfg config.TransformConfig) *Transformer {
	return &Transformer{
		apiVersion:   cfg.APIVersion,
		gatewayName:  cfg.GatewayName,
		staticSeg:    cfg.StaticPathSegment,
		staticMaxAge: cfg.StaticMaxAge,
	}
}

// Transform returns a copy of resp with security, caching and version
// headers added. Status and body are never changed and resp itself is left
// untouched.
func (t *Transformer) Transform(resp *models.Response, req *models.Request) *models.Response {
	out := resp.Clone()
	h := out.Header

	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

	if req.HasPathSegment(t.staticSeg) {
		h.Set("Cache-Control", "public, max-age="+strconv.Itoa(t.staticMaxAge)+", immutable")
	}

	if t.apiVersion != "" {
		h.Set("X-API-Version", t.apiVersion)
	}
	if t.gatewayName != "" {
		h.Set("X-Powered-By", t.gatewayName)
	}

	return out
}
