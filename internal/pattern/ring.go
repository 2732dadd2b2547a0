package pattern

import (
	"fmt"
	"slices"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// RingSpec parameterizes one tensor-parallel ring group.
type RingSpec struct {
	Group          int
	GroupNodeCount int
	PhaseCount     int
	Device         int
	Repeats        int
	MessageLength  int64
	Port           int
	Forward        bool
}

// Window returns the half-open host range [start, end) of the ring:
// start = (2*group + device) * groupNodeCount, end = start + groupNodeCount.
func (s RingSpec) Window() (start, end int) {
	start = (2*s.Group + s.Device) * s.GroupNodeCount
	return start, start + s.GroupNodeCount
}

// TensorRing emits PhaseCount identical ring phases, the whole set repeated
// Repeats times. Each host sends to its successor; the last wraps to start.
func TensorRing(s RingSpec) ([]types.Phase, error) {
	if s.GroupNodeCount <= 0 || s.PhaseCount <= 0 {
		return nil, errors.NewRangeError("TensorRing", 0,
			fmt.Sprintf("num_nodes %d and num_phases %d must be positive", s.GroupNodeCount, s.PhaseCount), nil)
	}
	repeats := max(1, s.Repeats)

	start, end := s.Window()
	ring := make(types.Phase, 0, end-start)
	for i := start; i < end; i++ {
		dst := i + 1
		if i == end-1 {
			dst = start
		}
		ring = append(ring, types.NewDescriptor(i, dst, s.Port, s.MessageLength, s.Forward))
	}

	phases := make([]types.Phase, 0, repeats*s.PhaseCount)
	for r := 0; r < repeats; r++ {
		for p := 0; p < s.PhaseCount; p++ {
			phases = append(phases, slices.Clone(ring))
		}
	}
	return phases, nil
}
