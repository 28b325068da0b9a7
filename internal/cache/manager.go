// Package cache stores successful GET responses in the shared state store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/policy"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"go.uber.org/zap"
)

const keyPrefix = "cache:"

type Manager struct {
	store    storage.Store
	policies *policy.Table
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(store storage.Store, policies *policy.Table, log *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		policies: policies,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

// Key derives the store key from method, path and the raw query string.
// Query parameters are not reordered: "?a=1&b=2" and "?b=2&a=1" are
// different entries.
func Key(req *models.Request) string {
	sum := sha256.Sum256([]byte(req.Method + req.Path + req.Search()))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Lookup returns the cached entry for req. Misses, including expired and
// unreadable entries, return nil with a nil error.
func (m *Manager) Lookup(ctx context.Context, req *models.Request) (*Entry, error) {
	key := Key(req)

	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache lookup %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		m.logger.Warn("Discarding unreadable cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, nil
	}

	return &entry, nil
}

// Store persists resp for req using the route's TTL. A zero TTL is a no-op
// and reports stored=false.
func (m *Manager) Store(ctx context.Context, req *models.Request, resp *models.Response) (bool, error) {
	ttl := m.policies.CacheTTL(policy.RouteKey(req.Method, req.Path))
	if ttl <= 0 {
		return false, nil
	}

	data, err := json.Marshal(newEntry(resp, m.now()))
	if err != nil {
		return false, fmt.Errorf("encode cache entry: %w", err)
	}

	key := Key(req)
	if err := m.store.Put(ctx, key, string(data), ttl); err != nil {
		return false, fmt.Errorf("cache store %s: %w", key, err)
	}

	return true, nil
}
