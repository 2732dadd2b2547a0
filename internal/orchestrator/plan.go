package orchestrator

import (
	"math/rand/v2"

	"github.com/scttfrdmn/collective-traffic-gen/internal/partition"
	"github.com/scttfrdmn/collective-traffic-gen/internal/pattern"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// hopHosts maps a simulated hop token to a host index.
var hopHosts = map[string]int{"A": 0, "B": 1, "C": 2, "D": 3, "E": 4, "F": 5}

// HostsFromHops translates hop tokens to host indices below hostCount.
// Unknown tokens are dropped.
func HostsFromHops(hops []string, hostCount int) []int {
	var hosts []int
	for _, h := range hops {
		idx, ok := hopHosts[h]
		if ok && idx < hostCount {
			hosts = append(hosts, idx)
		}
	}
	return hosts
}

// synthFunc synthesizes the phases of one group on port. rng is nil unless
// the plan needs randomness.
type synthFunc func(group, port int, rng *rand.Rand) ([]types.Phase, error)

// plan is the group layout of one node.
type plan struct {
	groups     int
	randomized bool
	synth      synthFunc
}

// planNode computes the group layout of a node for mode. A returned error
// skips the whole node. groups reports the full count while host groups are
// only materialized for the first maxGroups of them.
func planNode(mode types.Mode, args types.CommArgs, deviceCount, maxGroups int) (*plan, error) {
	dp := args.EffectiveParallelism()
	forward := args.IsForward()

	switch mode {
	case types.ModeDP:
		total, err := partition.DPGroupCount(args.HostCount, dp)
		if err != nil {
			return nil, err
		}
		groups, err := partition.ForDP(args.HostCount, dp, maxGroups)
		if err != nil {
			return nil, err
		}
		return &plan{
			groups:     total,
			randomized: true,
			synth: func(g, port int, rng *rand.Rand) ([]types.Phase, error) {
				return pattern.Hypercube(groups[g], args.MessageLength, port, forward, rng)
			},
		}, nil

	case types.ModeEP:
		total, err := partition.EPGroupCount(args.HostCount, dp, deviceCount)
		if err != nil {
			return nil, err
		}
		groups, err := partition.ForEP(args.HostCount, dp, args.Device, deviceCount, maxGroups)
		if err != nil {
			return nil, err
		}
		return &plan{
			groups: total,
			synth: func(g, port int, _ *rand.Rand) ([]types.Phase, error) {
				return pattern.AllToAll(groups[g], args.MessageLength, port, forward), nil
			},
		}, nil

	case types.ModeTP:
		n, err := partition.TensorGroupCount(args.HostCount, deviceCount, args.GroupNodeCount)
		if err != nil {
			return nil, err
		}
		return &plan{
			groups: n,
			synth: func(g, port int, _ *rand.Rand) ([]types.Phase, error) {
				return pattern.TensorRing(pattern.RingSpec{
					Group:          g,
					GroupNodeCount: args.GroupNodeCount,
					PhaseCount:     args.PhaseCount,
					Device:         args.Device,
					Repeats:        args.IterationCount,
					MessageLength:  args.MessageLength,
					Port:           port,
					Forward:        forward,
				})
			},
		}, nil

	case types.ModePP:
		perGroup := partition.PipelineGroupSize(args.HostCount, dp, deviceCount)
		limit := 0
		if maxGroups > 0 {
			limit = min(dp, maxGroups) * perGroup
		}
		pairs := partition.PipelinePairs(args.HostCount, dp, deviceCount, limit)
		return &plan{
			groups: dp,
			synth: func(g, port int, _ *rand.Rand) ([]types.Phase, error) {
				group := partition.PipelineGroup(pairs, g, perGroup, args.HostCount, deviceCount)
				return pattern.Pipeline(group, args.MessageLength, port, forward), nil
			},
		}, nil
	}

	return &plan{}, nil
}
