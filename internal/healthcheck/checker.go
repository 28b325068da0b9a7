package healthcheck

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"go.uber.org/zap"
)

// Checker probes every backend on an interval and remembers the result.
// It only reports: backend selection never consults it.
type Checker struct {
	mu          sync.RWMutex
	backends    []string
	status      map[string]*Status
	endpoint    string
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	client      *http.Client
	logger      *zap.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// Holds health checker configuration
type Config struct {
	Backends    []string
	Endpoint    string        // Probe path (e.g., "/health")
	Interval    time.Duration // How often to probe (default: 10s)
	Timeout     time.Duration // Per probe timeout (default: 5s)
	MaxFailures int           // Consecutive failures before reporting down (default: 3)
}

func NewChecker(cfg Config, log *zap.Logger) *Checker {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/health"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	c := &Checker{
		backends:    append([]string(nil), cfg.Backends...),
		status:      make(map[string]*Status, len(cfg.Backends)),
		endpoint:    cfg.Endpoint,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		client:      &http.Client{},
		logger:      logger.OrNop(log),
	}

	// Unknown until the first probe; assume reachable
	for _, b := range cfg.Backends {
		c.status[b] = &Status{Backend: b, Reachable: true}
	}

	return c
}

// Start runs one probe round immediately and then keeps probing until ctx
// is cancelled or Stop is called.
func (c *Checker) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.logger.Info("Starting backend probes",
		zap.Int("backends", len(c.backends)),
		zap.Duration("interval", c.interval),
	)

	c.CheckAll(ctx)

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stops probing and waits for the loop to exit
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		c.logger.Info("Backend probes stopped")
	}
}

// Probes all backends concurrently
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, b := range c.backends {
		wg.Add(1)
		go func(backend string) {
			defer wg.Done()
			c.check(ctx, backend)
		}(b)
	}

	wg.Wait()
}

func (c *Checker) check(ctx context.Context, backend string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend+c.endpoint, nil)
	if err != nil {
		c.record(backend, false, 0, err.Error())
		return
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.record(backend, false, 0, err.Error())
		return
	}
	resp.Body.Close()

	// 2xx and 3xx count as reachable
	ok := resp.StatusCode >= 200 && resp.StatusCode < 400
	c.record(backend, ok, time.Since(start), resp.Status)
}

func (c *Checker) record(backend string, ok bool, latency time.Duration, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.status[backend]
	now := time.Now()
	s.LastCheck = now
	s.LastDetail = detail
	s.Latency = latency

	if ok {
		s.LastSuccess = now
		s.FailureCount = 0
		if !s.Reachable {
			c.logger.Info("Backend reachable again", zap.String("backend", backend))
			s.Reachable = true
		}
		return
	}

	s.LastFailure = now
	s.FailureCount++
	if s.Reachable && s.FailureCount >= c.maxFailures {
		c.logger.Warn("Backend unreachable",
			zap.String("backend", backend),
			zap.Int("failures", s.FailureCount),
			zap.String("detail", detail),
		)
		s.Reachable = false
	}
}

// Returns a copy of every backend's status in pool order
func (c *Checker) Snapshot() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.backends))
	for _, b := range c.backends {
		out = append(out, *c.status[b])
	}
	return out
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reachable := 0
	for _, s := range c.status {
		if s.Reachable {
			reachable++
		}
	}

	switch {
	case reachable == 0:
		return Unhealthy
	case reachable < len(c.backends):
		return Degraded
	default:
		return Healthy
	}
}
