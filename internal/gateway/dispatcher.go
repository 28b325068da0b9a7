// Package gateway composes the edge pipeline: CORS, rate limiting, response
// caching, backend selection, forwarding and response transformation.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/cache"
	"github.com/aman-churiwal/edge-gateway/internal/cors"
	"github.com/aman-churiwal/edge-gateway/internal/loadbalancer"
	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/metrics"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/policy"
	"github.com/aman-churiwal/edge-gateway/internal/ratelimit"
	"github.com/aman-churiwal/edge-gateway/internal/transform"
	"go.uber.org/zap"
)

// ResponseCache is the part of cache.Manager the dispatcher needs
type ResponseCache interface {
	Lookup(ctx context.Context, req *models.Request) (*cache.Entry, error)
	Store(ctx context.Context, req *models.Request, resp *models.Response) (bool, error)
}

type Forwarder interface {
	Forward(ctx context.Context, backend string, req *models.Request) (*models.Response, error)
}

type Options struct {
	CORS        *cors.Handler
	Limiter     ratelimit.Limiter
	Cache       ResponseCache
	Balancer    loadbalancer.Strategy
	Forwarder   Forwarder
	Transformer *transform.Transformer
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Dispatcher struct {
	cors        *cors.Handler
	limiter     ratelimit.Limiter
	cache       ResponseCache
	balancer    loadbalancer.Strategy
	forwarder   Forwarder
	transformer *transform.Transformer
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		cors:        opts.CORS,
		limiter:     opts.Limiter,
		cache:       opts.Cache,
		balancer:    opts.Balancer,
		forwarder:   opts.Forwarder,
		transformer: opts.Transformer,
		metrics:     opts.Metrics,
		logger:      logger.OrNop(opts.Logger),
		now:         time.Now,
	}
}

// Handle runs one request through the pipeline. It always returns a
// response: failures and panics become a 500 with a JSON error body.
func (d *Dispatcher) Handle(ctx context.Context, req *models.Request) (resp *models.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic recovered in dispatcher",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Any("error", r),
				zap.Stack("stacktrace"),
			)
			resp = d.internalError(req)
		}
	}()

	var err error
	resp, err = d.handle(ctx, req)
	if err != nil {
		d.logger.Error("Request failed",
			zap.String("route", policy.RouteKey(req.Method, req.Path)),
			zap.Error(err),
		)
		return d.internalError(req)
	}

	return resp
}

func (d *Dispatcher) handle(ctx context.Context, req *models.Request) (*models.Response, error) {
	if cors.IsPreflight(req.Method) {
		d.metrics.Request(metrics.OutcomePreflight)
		return d.cors.Preflight(req.Origin), nil
	}

	routeKey := policy.RouteKey(req.Method, req.Path)

	decision, err := d.limiter.Check(ctx, clientID(req), routeKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		d.metrics.Request(metrics.OutcomeRateLimited)
		return d.rateLimited(req, decision), nil
	}

	isGet := req.Method == http.MethodGet

	if isGet {
		entry, err := d.cache.Lookup(ctx, req)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			d.metrics.Cache("hit")
			d.metrics.Request(metrics.OutcomeCacheHit)
			return d.cacheHit(req, entry), nil
		}
		d.metrics.Cache("miss")
	}

	backend, err := d.balancer.Next(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	upstream, err := d.forwarder.Forward(ctx, backend, req)
	if err != nil {
		d.metrics.Upstream(backend, 0, time.Since(start))
		return nil, err
	}
	d.metrics.Upstream(backend, upstream.Status, time.Since(start))

	resp := d.transformer.Transform(upstream, req)

	if isGet && resp.IsSuccess() {
		d.store(ctx, req, routeKey, resp)
	}
	if isGet {
		// Set after the store so it is never persisted into an entry
		resp.Header.Set("X-Cache", "MISS")
		resp.CacheStatus = "MISS"
	}

	d.cors.Apply(resp, req.Origin)
	d.metrics.Request(metrics.OutcomeForwarded)
	return resp, nil
}

// A failed write is logged and otherwise ignored; the client still gets the
// upstream response.
func (d *Dispatcher) store(ctx context.Context, req *models.Request, routeKey string, resp *models.Response) {
	stored, err := d.cache.Store(ctx, req, resp)
	if err != nil {
		d.metrics.Cache("store_error")
		d.logger.Error("Failed to store cache entry",
			zap.String("route", routeKey),
			zap.Error(err),
		)
		return
	}
	if stored {
		d.metrics.Cache("store")
	}
}

func (d *Dispatcher) cacheHit(req *models.Request, entry *cache.Entry) *models.Response {
	resp := entry.Response()

	age := int64(entry.Age(d.now()) / time.Second)
	resp.Header.Set("X-Cache", "HIT")
	resp.Header.Set("X-Cache-Age", strconv.FormatInt(age, 10))
	resp.CacheStatus = "HIT"

	d.cors.Apply(resp, req.Origin)
	return resp
}

func (d *Dispatcher) rateLimited(req *models.Request, decision ratelimit.Decision) *models.Response {
	window := decision.Policy.WindowSeconds()

	resp := models.NewErrorResponse(
		http.StatusTooManyRequests,
		"Too Many Requests",
		fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", window),
	)
	resp.Header.Set("Retry-After", strconv.Itoa(window))

	d.cors.Apply(resp, req.Origin)
	return resp
}

func (d *Dispatcher) internalError(req *models.Request) *models.Response {
	d.metrics.Request(metrics.OutcomeError)

	resp := models.NewErrorResponse(
		http.StatusInternalServerError,
		"Internal Server Error",
		"The gateway could not complete the request",
	)
	if d.cors != nil {
		d.cors.Apply(resp, req.Origin)
	}
	return resp
}

func clientID(req *models.Request) string {
	if req.ClientIP == "" {
		return "unknown"
	}
	return req.ClientIP
}
