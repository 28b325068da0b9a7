package middleware

import (
	"net/http"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Outer safety net for panics outside the dispatcher (admin handlers,
// other middleware). The dispatcher recovers its own pipeline.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic recovered",
					zap.String("request_id", c.GetString(RequestIDKey)),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorBody{
					Error:   "Internal Server Error",
					Message: "The gateway could not complete the request",
				})
			}
		}()
		c.Next()
	}
}
