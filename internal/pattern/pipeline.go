package pattern

import (
	"github.com/scttfrdmn/collective-traffic-gen/internal/partition"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Pipeline emits a single phase with one send per (src, dst) pair.
func Pipeline(pairs []partition.Pair, msgLen int64, port int, forward bool) []types.Phase {
	phase := make(types.Phase, 0, len(pairs))
	for _, p := range pairs {
		phase = append(phase, types.NewDescriptor(p.Src, p.Dst, port, msgLen, forward))
	}
	return []types.Phase{phase}
}
