package handler

import (
	"net/http"

	"github.com/aman-churiwal/edge-gateway/internal/healthcheck"
	"github.com/gin-gonic/gin"
)

// Reports what the prober has seen of each backend
type BackendProber interface {
	Snapshot() []healthcheck.Status
	OverallHealth() healthcheck.HealthStatus
}

// Handles system-related endpoints
type SystemHandler struct {
	prober   BackendProber
	strategy string
}

func NewSystemHandler(prober BackendProber, strategy string) *SystemHandler {
	return &SystemHandler{
		prober:   prober,
		strategy: strategy,
	}
}

// Handles GET /admin/backends. The status is informational only: selection
// keeps rotating through every configured backend.
func (h *SystemHandler) BackendStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"strategy": h.strategy,
		"overall":  h.prober.OverallHealth(),
		"backends": h.prober.Snapshot(),
	})
}
