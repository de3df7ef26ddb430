// Package loadbalance provides endpoint selection strategies for
// services registered under one name with multiple instances.
//
//   - RoundRobin:      stateless services, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different capacity)
//   - ConsistentHash:  caller-affinity picks for stateful services
package loadbalance

import "ipc-link/registry"

// Balancer selects one instance from the available list. Pick is called
// before every named call and must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.Instance) (*registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
