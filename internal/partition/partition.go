// Package partition turns host counts and parallelism degrees into the
// host groups that run one instance of a communication pattern.
package partition

import (
	"fmt"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
)

// Pair is a pipeline-parallel (src, dst) host pair.
type Pair struct {
	Src int `json:"src" yaml:"src"`
	Dst int `json:"dst" yaml:"dst"`
}

func checkDivisible(operation string, hostCount, dp int) error {
	if dp <= 0 {
		return errors.NewDivisibilityError(operation, fmt.Sprintf("dp must be positive, got %d", dp))
	}
	if hostCount%dp != 0 {
		return errors.NewDivisibilityError(operation,
			fmt.Sprintf("host_num %d is not divisible by dp %d", hostCount, dp))
	}
	return nil
}

// DPGroupCount is the number of data-parallel groups of hostCount hosts.
func DPGroupCount(hostCount, dp int) (int, error) {
	if err := checkDivisible("ForDP", hostCount, dp); err != nil {
		return 0, err
	}
	return hostCount / dp, nil
}

// ForDP splits hostCount hosts into hostCount/dp data-parallel groups. Group
// start holds start, start+span, start+2*span, ... where span = hostCount/dp.
// Only the first limit groups are built; limit <= 0 builds all of them.
func ForDP(hostCount, dp, limit int) ([][]int, error) {
	span, err := DPGroupCount(hostCount, dp)
	if err != nil {
		return nil, err
	}

	n := capCount(span, limit)
	groups := make([][]int, 0, n)
	for start := range n {
		groups = append(groups, stride(start, span, hostCount))
	}
	return groups, nil
}

// EPGroupCount is the number of expert-parallel groups each device owns.
func EPGroupCount(hostCount, dp, deviceCount int) (int, error) {
	if err := checkDivisible("ForEP", hostCount, dp); err != nil {
		return 0, err
	}
	if deviceCount <= 0 {
		return 0, errors.NewDivisibilityError("ForEP", fmt.Sprintf("device count must be positive, got %d", deviceCount))
	}
	return hostCount / deviceCount / dp, nil
}

// ForEP returns the expert-parallel groups owned by device. With
// span = hostCount/deviceCount/dp, the device scans starts
// [device*span, (device+1)*span) and each group strides by 2*span.
// Only the first limit groups are built; limit <= 0 builds all of them.
func ForEP(hostCount, dp, device, deviceCount, limit int) ([][]int, error) {
	span, err := EPGroupCount(hostCount, dp, deviceCount)
	if err != nil {
		return nil, err
	}

	n := capCount(span, limit)
	groups := make([][]int, 0, n)
	for start := device * span; start < device*span+n; start++ {
		groups = append(groups, stride(start, 2*span, hostCount))
	}
	return groups, nil
}

// PipelinePairs pairs every host with the host dp positions ahead, one block
// of deviceCount*dp hosts per pipeline group. At most limit pairs are
// returned; limit <= 0 returns all of them.
func PipelinePairs(hostCount, dp, deviceCount, limit int) []Pair {
	if dp <= 0 || deviceCount <= 0 {
		return nil
	}

	numGroups := max(1, (deviceCount*hostCount)/(deviceCount*dp))
	var pairs []Pair
	for k := 0; k < numGroups; k++ {
		for i := 0; i < dp; i++ {
			src := k*deviceCount*dp + i
			dst := src + dp
			// src and dst only grow from here on.
			if src >= hostCount || dst >= deviceCount*hostCount {
				return pairs
			}
			pairs = append(pairs, Pair{Src: src, Dst: dst})
			if limit > 0 && len(pairs) == limit {
				return pairs
			}
		}
	}
	return pairs
}

// PipelineGroupSize is the number of pairs each pipeline group takes.
func PipelineGroupSize(hostCount, dp, deviceCount int) int {
	if dp <= 0 || deviceCount <= 0 {
		return 1
	}
	return max(1, hostCount/deviceCount/dp)
}

// PipelineGroup slices the pairs of group g. The slice ends at
// min((g+1)*perGroup, hostCount/deviceCount) and never past len(pairs).
func PipelineGroup(pairs []Pair, g, perGroup, hostCount, deviceCount int) []Pair {
	start := g * perGroup
	end := (g + 1) * perGroup
	if deviceCount > 0 {
		end = min(end, hostCount/deviceCount)
	}
	end = min(end, len(pairs))
	if start >= end {
		return nil
	}
	return pairs[start:end]
}

// TensorGroupCount is the number of tensor-parallel rings per device.
func TensorGroupCount(hostCount, deviceCount, groupNodeCount int) (int, error) {
	if groupNodeCount <= 0 || deviceCount <= 0 {
		return 0, errors.NewDivisibilityError("TensorGroupCount",
			fmt.Sprintf("num_nodes %d and device count %d must be positive", groupNodeCount, deviceCount))
	}
	if hostCount%groupNodeCount != 0 {
		return 0, errors.NewDivisibilityError("TensorGroupCount",
			fmt.Sprintf("host_num %d is not divisible by num_nodes %d", hostCount, groupNodeCount))
	}
	return hostCount / deviceCount / groupNodeCount, nil
}

func capCount(n, limit int) int {
	if limit > 0 {
		return min(n, limit)
	}
	return n
}

func stride(start, step, limit int) []int {
	var hosts []int
	for h := start; h < limit; h += step {
		hosts = append(hosts, h)
	}
	return hosts
}
