package loadbalance

import (
	"math/rand"

	"github.com/pkg/errors"

	"ipc-link/registry"
)

// WeightedRandom picks instances with probability proportional to their
// registered weight. Instances without a positive weight count as 1, so
// a list registered without weights degrades to uniform selection.
type WeightedRandom struct{}

func (b *WeightedRandom) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, errors.New("no instances available")
	}

	totalWeight := 0
	for _, inst := range instances {
		totalWeight += effectiveWeight(inst)
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= effectiveWeight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}

	return nil, errors.New("unexpected error in weighted random selection")
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}

func effectiveWeight(inst registry.Instance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}
