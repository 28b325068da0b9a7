package storage

import (
	"context"
	"time"
)

// Store is the shared key-value state used by every gateway instance.
//
// The only guarantees are per-key expiry and last-write-wins. There is no
// increment, compare-and-swap or transaction: callers that read a value,
// change it and write it back race with every other instance doing the same
// and can lose updates. Counters built on top of Store are approximate.
type Store interface {
	// Get returns the value for key. A missing or expired key is reported
	// with ok=false and a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Put writes value under key. A ttl of zero or less stores without expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}
