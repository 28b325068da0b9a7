package loadbalancer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"go.uber.org/zap"
)

const (
	CounterKey = "backend_counter"
	CounterTTL = time.Hour
)

// RoundRobin rotates through a static pool using a counter kept in the
// shared store, so every gateway instance advances the same rotation.
//
// The counter is read and written back without atomicity. Concurrent
// callers may read the same value and pick the same backend, or overwrite
// each other's increment; distribution is approximately, not strictly,
// round robin under load. There is no health checking or weighting here.
type RoundRobin struct {
	store    storage.Store
	backends []string
	logger   *zap.Logger
}

func NewRoundRobin(store storage.Store, backends []string, log *zap.Logger) *RoundRobin {
	pool := make([]string, len(backends))
	copy(pool, backends)

	return &RoundRobin{
		store:    store,
		backends: pool,
		logger:   logger.OrNop(log),
	}
}

// Returns the next backend in round-robin order
func (r *RoundRobin) Next(ctx context.Context) (string, error) {
	if len(r.backends) == 0 {
		return "", ErrNoBackends
	}

	raw, ok, err := r.store.Get(ctx, CounterKey)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", CounterKey, err)
	}

	var counter uint64
	if ok {
		counter, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			r.logger.Warn("Resetting unreadable backend counter", zap.String("value", raw))
			counter = 0
		}
	}

	target := r.backends[counter%uint64(len(r.backends))]

	if err := r.store.Put(ctx, CounterKey, strconv.FormatUint(counter+1, 10), CounterTTL); err != nil {
		r.logger.Error("Failed to advance backend counter", zap.Error(err))
	}

	return target, nil
}

// Returns the configured pool in order
func (r *RoundRobin) Backends() []string {
	out := make([]string, len(r.backends))
	copy(out, r.backends)
	return out
}

// Returns the strategy name
func (r *RoundRobin) Name() string {
	return "round_robin"
}
