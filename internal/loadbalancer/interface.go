package loadbalancer

import "context"

type Strategy interface {
	// Selects the next backend base URL
	Next(ctx context.Context) (string, error)

	// Returns the strategy name
	Name() string
}
