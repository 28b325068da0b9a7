package middleware

import (
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context keys the dispatcher route fills in for the access and request logs
const (
	RouteKeyKey    = "route_key"
	BackendKey     = "backend"
	CacheStatusKey = "cache_status"
)

// Logs one line per request; the level follows the status code.
func Logger(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if cs := c.GetString(CacheStatusKey); cs != "" {
			fields = append(fields, zap.String("cache", cs))
		}
		if b := c.GetString(BackendKey); b != "" {
			fields = append(fields, zap.String("backend", b))
		}

		if ce := log.Check(levelFor(statusCode), "Request handled"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
