package pattern

import (
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// AllToAll emits N-1 phases over a group of N hosts. In phase s the host at
// position idx sends to the host at position (s+idx) mod N.
func AllToAll(hosts []int, msgLen int64, port int, forward bool) []types.Phase {
	n := len(hosts)
	if n < 2 {
		return nil
	}

	phases := make([]types.Phase, 0, n-1)
	for step := 1; step < n; step++ {
		phase := make(types.Phase, 0, n)
		for idx, src := range hosts {
			dst := hosts[(step+idx)%n]
			phase = append(phase, types.NewDescriptor(src, dst, port, msgLen, forward))
		}
		phases = append(phases, phase)
	}
	return phases
}
