package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"ipc-link/registry"
)

// ConsistentHash maps caller keys to instances on a hash ring, so the
// same key keeps landing on the same instance until the ring changes.
// Useful for services that hold per-caller state or caches.
//
// Each instance is placed on the ring as 100 virtual nodes; without
// them a handful of instances would cluster and skew the distribution.
//
// Note: PickKey takes a string key rather than an instance list, so
// ConsistentHash does not implement Balancer — key affinity is a
// different contract from stateless selection.
type ConsistentHash struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*registry.Instance
}

// NewConsistentHash creates an empty ring with 100 virtual nodes per
// instance.
func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{
		replicas: 100,
		nodes:    make(map[uint32]*registry.Instance),
	}
}

// Add places an instance onto the ring. Virtual nodes are hashed from
// "{endpoint}#{i}" to spread evenly.
func (b *ConsistentHash) Add(inst *registry.Instance) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", inst.Endpoint, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = inst
	}
	// Ring stays sorted for the binary search in PickKey.
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickKey finds the instance owning the key: hash it, then take the
// first node clockwise on the ring, wrapping past zero.
func (b *ConsistentHash) PickKey(key string) (*registry.Instance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no instances on the ring")
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHash) Name() string {
	return "ConsistentHash"
}
