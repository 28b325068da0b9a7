package loadbalancer

import (
	"errors"
	"fmt"

	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"go.uber.org/zap"
)

var ErrNoBackends = errors.New("backend pool is empty")

// Creates a load balancing strategy based on name
func NewStrategy(strategyName string, store storage.Store, backends []string, log *zap.Logger) (Strategy, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	switch strategyName {
	case "round-robin", "round_robin", "":
		return NewRoundRobin(store, backends, log), nil
	default:
		return nil, fmt.Errorf("unknown load balancing strategy: %s", strategyName)
	}
}
