package topology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// LayerStride is the layer band reserved for each iteration.
const LayerStride = 17

// FirstDPAlias is the alias whose node is carried into the next iteration.
const FirstDPAlias = "DP1"

// hopTokens are the simulated hop labels sampled for every new node.
var hopTokens = []string{"A", "B", "C", "D", "E"}

type builder struct {
	ctx       *Context
	tree      *Tree
	iteration int
	counters  map[types.Kind]int
	tpMerged  map[string]int
}

// Build parses grammar into the tree of one iteration. For iteration > 0
// the carried DP node of the previous iteration is spliced in and bridged to
// this iteration by a synthetic TP node. It returns the tree and the node
// bound to DP1, which the caller carries into the next iteration.
func Build(ctx *Context, grammar []byte, iteration int, carried *CarriedNode) (*Tree, *CarriedNode, error) {
	lines, err := splitLines(grammar)
	if err != nil {
		return nil, nil, err
	}
	header, err := ParseHeader(lines[0])
	if err != nil {
		return nil, nil, err
	}
	ctx.applyHeader(header)

	b := &builder{
		ctx:       ctx,
		tree:      newTree(iteration),
		iteration: iteration,
		counters:  make(map[types.Kind]int),
		tpMerged:  make(map[string]int),
	}

	carriedIdx := -1
	if carried != nil && iteration > 0 {
		carriedIdx = b.insertCarried(carried)
	}

	for i, line := range lines[1:] {
		if !isBodyLine(line) {
			continue
		}
		spec, err := parseLine(line, i+2, ctx.DeviceCount)
		if err != nil {
			return nil, nil, err
		}
		if err := b.apply(spec); err != nil {
			return nil, nil, err
		}
	}

	if carriedIdx >= 0 {
		if err := b.bridge(carriedIdx); err != nil {
			return nil, nil, err
		}
	}

	dp, ok := b.tree.Alias(FirstDPAlias)
	if !ok {
		return nil, nil, errors.NewMissingDPError("Build",
			fmt.Sprintf("iteration %d: no DP node declared, cannot chain the next iteration", iteration))
	}
	return b.tree, &CarriedNode{ID: dp.ID, Args: dp.Args}, nil
}

func (b *builder) apply(spec *lineSpec) error {
	layer := spec.layer + b.iteration*LayerStride

	parents := make([]int, 0, len(spec.parents))
	for _, ref := range spec.parents {
		idx, err := b.resolve(ref, spec.num)
		if err != nil {
			return err
		}
		if p := b.tree.Node(idx); idx != rootIndex && p.Layer > layer {
			return errors.NewParseError("apply", spec.num,
				fmt.Sprintf("layer %d is below parent %s at layer %d", layer, p.ID, p.Layer), nil)
		}
		parents = append(parents, idx)
	}

	if spec.kind == types.KindTP && b.iteration == 0 && b.ctx.FirstTPArgs == nil {
		args := spec.args
		b.ctx.FirstTPArgs = &args
	}

	var idx int
	if spec.kind == types.KindTP && len(parents) > 1 {
		idx = b.mergeTP(layer, parents, spec.args)
	} else {
		for _, p := range parents {
			idx = b.createNode(spec.kind, layer, spec.args, p)
		}
	}

	b.bindAlias(spec.kind, idx)
	return nil
}

func (b *builder) resolve(ref string, num int) (int, error) {
	if ref == RootToken {
		return rootIndex, nil
	}
	idx, ok := b.tree.aliases[ref]
	if !ok {
		return 0, errors.NewParseError("resolve", num, fmt.Sprintf("parent node %s does not exist", ref), nil)
	}
	return idx, nil
}

// mergeTP creates the physical node for a multi-parent TP line, or adds the
// missing parent edges to the node already created for the same layer and
// parent set.
func (b *builder) mergeTP(layer int, parents []int, args types.CommArgs) int {
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, b.tree.Node(p).ID)
	}
	sort.Strings(ids)
	key := fmt.Sprintf("%d|%s", layer, strings.Join(ids, "/"))

	idx, exists := b.tpMerged[key]
	if !exists {
		idx = b.createNode(types.KindTP, layer, args, parents[0])
		b.tpMerged[key] = idx
	}
	for _, p := range parents {
		b.tree.addEdge(p, idx)
	}
	return idx
}

func (b *builder) createNode(kind types.Kind, layer int, args types.CommArgs, parent int) int {
	idx := b.tree.addNode(Node{
		ID:            b.ctx.nodeID(kind, layer),
		Kind:          kind,
		Layer:         layer,
		SimulatedHops: b.sampleHops(),
		Args:          args,
	})
	b.tree.addEdge(parent, idx)
	return idx
}

func (b *builder) sampleHops() []string {
	rng := b.ctx.Rand()
	hops := make([]string, 1+rng.IntN(3))
	for i := range hops {
		hops[i] = hopTokens[rng.IntN(len(hopTokens))]
	}
	return hops
}

func (b *builder) bindAlias(kind types.Kind, idx int) {
	b.counters[kind]++
	b.tree.aliases[fmt.Sprintf("%s%d", kind, b.counters[kind])] = idx
}

// insertCarried splices the previous iteration's DP node under the root.
// It keeps its id and args and has no hops of its own.
func (b *builder) insertCarried(carried *CarriedNode) int {
	idx := b.tree.addNode(Node{
		ID:      carried.ID,
		Kind:    types.KindDP,
		Layer:   LayerStride + LayerStride*(b.iteration-1),
		Args:    carried.Args,
		Carried: true,
	})
	b.tree.addEdge(rootIndex, idx)
	return idx
}

// bridge appends the synthetic TP node that links the carried DP node to
// this iteration, using the cached first TP args.
func (b *builder) bridge(carriedIdx int) error {
	if b.ctx.FirstTPArgs == nil {
		return errors.NewBridgeError("bridge",
			fmt.Sprintf("iteration %d: no TP line in iteration 0, cannot create the bridging TP node", b.iteration))
	}
	idx := b.createNode(types.KindTP, LayerStride+LayerStride*b.iteration, *b.ctx.FirstTPArgs, carriedIdx)
	b.bindAlias(types.KindTP, idx)
	return nil
}
