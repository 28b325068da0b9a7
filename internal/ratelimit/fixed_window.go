package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/policy"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"go.uber.org/zap"
)

// FixedWindowLimiter keeps one counter per client and route in the shared
// store. The counter lives for the policy window and is dropped by store
// expiry.
//
// Known weakness: the count is read, incremented and written back without
// any atomicity. Two gateway instances serving the same client at the same
// moment can both read n and both write n+1, so a burst of concurrent
// requests may admit more than Limit. A burst straddling a window boundary
// can also admit up to 2*Limit. Both are accepted approximations.
type FixedWindowLimiter struct {
	store    storage.Store
	policies *policy.Table
	logger   *zap.Logger
}

func NewFixedWindow(store storage.Store, policies *policy.Table, log *zap.Logger) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:    store,
		policies: policies,
		logger:   logger.OrNop(log),
	}
}

func Key(clientID, routeKey string) string {
	return "ratelimit:" + clientID + ":" + routeKey
}

func (f *FixedWindowLimiter) Check(ctx context.Context, clientID, routeKey string) (Decision, error) {
	rl := f.policies.RateLimit(routeKey)
	key := Key(clientID, routeKey)

	raw, ok, err := f.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit read %s: %w", key, err)
	}

	count := 0
	if ok {
		count, err = strconv.Atoi(raw)
		if err != nil {
			f.logger.Warn("Resetting unreadable rate limit counter",
				zap.String("key", key),
				zap.String("value", raw),
			)
			count = 0
		}
	}

	if count >= rl.Limit {
		// Over the limit: leave the counter alone so it expires on schedule
		return Decision{Allowed: false, Count: count, Policy: rl}, nil
	}

	count++

	// Every write resets the expiry to a full window
	if err := f.store.Put(ctx, key, strconv.Itoa(count), rl.Window); err != nil {
		f.logger.Error("Failed to write rate limit counter",
			zap.String("key", key),
			zap.String("route", routeKey),
			zap.Error(err),
		)
	}

	return Decision{Allowed: true, Count: count, Policy: rl}, nil
}

var _ Limiter = (*FixedWindowLimiter)(nil)
