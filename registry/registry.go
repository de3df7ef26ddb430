// Package registry maps service names to the stream endpoints currently
// serving them, so callers can reach a service by name instead of a
// hard-wired socket address.
package registry

import "ipc-link/stream"

// Instance is one registered endpoint of a service.
type Instance struct {
	Endpoint stream.Endpoint `json:"endpoint"`
	Weight   int             `json:"weight"` // Weight for load balancing
	Version  string          `json:"version"`
}

// Registry is the naming service contract.
type Registry interface {
	Register(service string, inst Instance, ttl int64) error
	Deregister(service string, ep stream.Endpoint) error
	Discover(service string) ([]Instance, error)
	Watch(service string) <-chan []Instance
}
