package healthcheck

import (
	"encoding/json"
	"time"
)

type Status struct {
	Backend      string        `json:"backend"`
	Reachable    bool          `json:"reachable"`
	LastCheck    time.Time     `json:"last_check"`
	LastSuccess  time.Time     `json:"last_success"`
	LastFailure  time.Time     `json:"last_failure"`
	FailureCount int           `json:"failure_count"`
	Latency      time.Duration `json:"latency_ns"`
	LastDetail   string        `json:"last_detail,omitempty"`
}

// Represents overall health of the backend pool
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Degraded
	Unhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (h HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}
