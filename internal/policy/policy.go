// Package policy resolves the per-route cache and rate-limit settings.
//
// Routes are matched by exact "METHOD PATH" string. There is no templating or
// prefix matching; anything not listed falls back to the default policy.
package policy

import (
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/config"
)

// RateLimit is a fixed-window admission policy
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// WindowSeconds is the window as sent in Retry-After
func (r RateLimit) WindowSeconds() int {
	return int(r.Window / time.Second)
}

type Table struct {
	defaultTTL  time.Duration
	defaultRate RateLimit
	ttls        map[string]time.Duration
	rates       map[string]RateLimit
}

// RouteKey is the policy and rate-limit namespace of a request. The query
// string is never part of it.
func RouteKey(method, path string) string {
	return method + " " + path
}

func New(defaultTTL time.Duration, defaultRate RateLimit) *Table {
	return &Table{
		defaultTTL:  defaultTTL,
		defaultRate: defaultRate,
		ttls:        make(map[string]time.Duration),
		rates:       make(map[string]RateLimit),
	}
}

func FromConfig(cfg config.PolicyConfig) *Table {
	t := New(
		seconds(cfg.Default.CacheTTL),
		RateLimit{Limit: cfg.Default.RateLimit.Limit, Window: seconds(cfg.Default.RateLimit.Window)},
	)

	for _, r := range cfg.Routes {
		key := RouteKey(r.Method, r.Path)
		if r.CacheTTL != nil {
			t.SetCacheTTL(key, seconds(*r.CacheTTL))
		}
		if r.RateLimit != nil {
			t.SetRateLimit(key, RateLimit{Limit: r.RateLimit.Limit, Window: seconds(r.RateLimit.Window)})
		}
	}

	return t
}

// Not safe for use once the table is shared between requests.
func (t *Table) SetCacheTTL(routeKey string, ttl time.Duration) {
	t.ttls[routeKey] = ttl
}

// Not safe for use once the table is shared between requests.
func (t *Table) SetRateLimit(routeKey string, rl RateLimit) {
	t.rates[routeKey] = rl
}

// CacheTTL returns the cache lifetime for routeKey; zero means do not cache
func (t *Table) CacheTTL(routeKey string) time.Duration {
	if ttl, ok := t.ttls[routeKey]; ok {
		return ttl
	}
	return t.defaultTTL
}

func (t *Table) RateLimit(routeKey string) RateLimit {
	if rl, ok := t.rates[routeKey]; ok {
		return rl
	}
	return t.defaultRate
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
