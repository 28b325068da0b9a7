package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/cache"
	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/cors"
	"github.com/aman-churiwal/edge-gateway/internal/gateway"
	"github.com/aman-churiwal/edge-gateway/internal/handler"
	"github.com/aman-churiwal/edge-gateway/internal/healthcheck"
	"github.com/aman-churiwal/edge-gateway/internal/loadbalancer"
	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/metrics"
	"github.com/aman-churiwal/edge-gateway/internal/middleware"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/policy"
	"github.com/aman-churiwal/edge-gateway/internal/proxy"
	"github.com/aman-churiwal/edge-gateway/internal/ratelimit"
	"github.com/aman-churiwal/edge-gateway/internal/repository"
	"github.com/aman-churiwal/edge-gateway/internal/service"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"github.com/aman-churiwal/edge-gateway/internal/transform"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 10 << 20

// StateStore is the shared store plus the liveness check used by /health
type StateStore interface {
	storage.Store
	Ping(ctx context.Context) error
}

type Options struct {
	Config *config.Config
	Store  StateStore
	// Optional; enables the request log and the analytics routes
	Postgres *storage.Postgres
	// Optional outbound client, mostly for tests
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	store      StateStore
	postgres   *storage.Postgres
	dispatcher *gateway.Dispatcher
	metrics    *metrics.Metrics
	prober     *healthcheck.Checker
	logWriter  *middleware.RequestLogWriter
	logger     *zap.Logger
	httpServer *http.Server
	startedAt  time.Time
}

func New(opts Options) (*Server, error) {
	cfg := opts.Config
	log := logger.OrNop(opts.Logger)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	// Paths are forwarded exactly as received
	router.RedirectTrailingSlash = false
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	policies := policy.FromConfig(cfg.Policies)

	balancer, err := loadbalancer.NewStrategy("round_robin", opts.Store, cfg.Backends, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	s := &Server{
		router:   router,
		config:   cfg,
		store:    opts.Store,
		postgres: opts.Postgres,
		metrics:  m,
		prober: healthcheck.NewChecker(healthcheck.Config{
			Backends:    cfg.Backends,
			Endpoint:    cfg.HealthCheck.Endpoint,
			Interval:    cfg.HealthCheck.Interval,
			Timeout:     cfg.HealthCheck.Timeout,
			MaxFailures: cfg.HealthCheck.MaxFailures,
		}, log),
		logger:    log,
		startedAt: time.Now(),
		dispatcher: gateway.New(gateway.Options{
			CORS:        cors.New(cfg.CORS),
			Limiter:     ratelimit.NewFixedWindow(opts.Store, policies, log),
			Cache:       cache.NewManager(opts.Store, policies, log),
			Balancer:    balancer,
			Forwarder:   proxy.NewForwarder(opts.HTTPClient, log),
			Transformer: transform.New(cfg.Transform),
			Metrics:     m,
			Logger:      log,
		}),
	}

	if opts.Postgres != nil {
		s.logWriter = middleware.NewRequestLogWriter(
			repository.NewRequestLogRepository(opts.Postgres), 1000, 100, 5*time.Second, log)
	}

	s.setupMiddleware()
	s.setupRoutes(balancer.Name())

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
	if s.logWriter != nil {
		s.router.Use(middleware.RequestLogger(s.logWriter))
	}
}

func (s *Server) setupRoutes(strategy string) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	if secret := s.config.Admin.JWTSecret; secret != "" {
		admin := s.router.Group("/admin", middleware.RequireAdmin(secret))
		{
			system := handler.NewSystemHandler(s.prober, strategy)
			admin.GET("/backends", system.BackendStatus)

			if s.postgres != nil {
				analytics := handler.NewAnalyticsHandler(
					service.NewAnalyticsService(repository.NewRequestLogRepository(s.postgres)), s.logger)
				admin.GET("/analytics", analytics.GetSummary)
				admin.GET("/logs", analytics.GetLogs)
				admin.DELETE("/logs", analytics.CleanupLogs)
			}
		}
	}

	// Everything else goes through the edge pipeline
	s.router.NoRoute(s.dispatch)
}

func (s *Server) dispatch(c *gin.Context) {
	if isGatewayPath(c.Request.URL.Path) {
		c.JSON(http.StatusNotFound, models.ErrorBody{
			Error:   "Not Found",
			Message: "No such gateway endpoint",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorBody{
				Error:   "Payload Too Large",
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorBody{
			Error:   "Bad Request",
			Message: "Could not read request body",
		})
		return
	}

	req := &models.Request{
		Method:    c.Request.Method,
		Host:      c.Request.Host,
		Path:      c.Request.URL.EscapedPath(),
		RawQuery:  c.Request.URL.RawQuery,
		Header:    c.Request.Header.Clone(),
		Body:      body,
		Origin:    c.GetHeader("Origin"),
		ClientIP:  c.ClientIP(),
		RequestID: c.GetString(middleware.RequestIDKey),
	}

	resp := s.dispatcher.Handle(c.Request.Context(), req)

	c.Set(middleware.RouteKeyKey, policy.RouteKey(req.Method, req.Path))
	c.Set(middleware.BackendKey, resp.Backend)
	c.Set(middleware.CacheStatusKey, resp.CacheStatus)

	writeResponse(c, resp)
}

func (s *Server) maxBodyBytes() int64 {
	if n := s.config.Server.MaxBodyBytes; n > 0 {
		return n
	}
	return defaultMaxBodyBytes
}

func writeResponse(c *gin.Context, resp *models.Response) {
	h := c.Writer.Header()
	for name, values := range resp.Header {
		// The gateway's own request id wins
		if name == middleware.RequestIDHeader && h.Get(name) != "" {
			continue
		}
		h[name] = append([]string(nil), values...)
	}

	c.Status(resp.Status)
	// Commit now so an empty upstream 404 is not replaced by gin's default body
	c.Writer.WriteHeaderNow()
	if len(resp.Body) > 0 {
		if _, err := c.Writer.Write(resp.Body); err != nil {
			_ = c.Error(err)
		}
	}
}

// Gateway-owned paths are never forwarded
func isGatewayPath(path string) bool {
	p := strings.TrimRight(path, "/")
	return p == "/health" || p == "/metrics" || p == "/admin" || strings.HasPrefix(p, "/admin/")
}

func (s *Server) healthCheck(c *gin.Context) {
	storeHealthy := true
	if err := s.store.Ping(c.Request.Context()); err != nil {
		storeHealthy = false
		s.logger.Warn("State store health check failed", zap.Error(err))
	}

	checks := gin.H{
		"state_store": storeHealthy,
		"backends":    s.prober.OverallHealth().String(),
	}

	if s.postgres != nil {
		dbHealthy := true
		if err := s.postgres.Ping(c.Request.Context()); err != nil {
			dbHealthy = false
			s.logger.Warn("Database health check failed", zap.Error(err))
		}
		checks["database"] = dbHealthy
	}

	status := "healthy"
	statusCode := http.StatusOK

	// Only the state store is required to serve traffic
	if !storeHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   s.config.Transform.GatewayName,
		"version":   s.config.Transform.APIVersion,
		"uptime":    time.Since(s.startedAt).Seconds(),
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// Run starts the backend probes and serves until Shutdown
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.prober.Start(context.Background())

	s.logger.Info("Starting edge gateway",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
		zap.Strings("backends", s.config.Backends),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.prober.Stop()
	if s.logWriter != nil {
		s.logWriter.Close()
	}

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
