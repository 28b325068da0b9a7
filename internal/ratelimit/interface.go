package ratelimit

import (
	"context"

	"github.com/aman-churiwal/edge-gateway/internal/policy"
)

type Decision struct {
	Allowed bool
	// Counter value after this request was counted. For rejected requests it
	// is the value that caused the rejection.
	Count  int
	Policy policy.RateLimit
}

// Remaining is how many more requests the window admits
func (d Decision) Remaining() int {
	if r := d.Policy.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

type Limiter interface {
	// Check counts one request from clientID against routeKey's policy
	Check(ctx context.Context, clientID, routeKey string) (Decision, error)
}
