package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/metrics"
	"github.com/scttfrdmn/collective-traffic-gen/internal/sink"
	"github.com/scttfrdmn/collective-traffic-gen/internal/topology"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

const twoIterationGrammar = `qwen 4 2
0 TP Root --host_num 16 --num_nodes 2
1 DP TP1 --host_num 8 --dp 2
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(t *testing.T, gc *topology.Context, grammar string, iteration int, carried *topology.CarriedNode) (*topology.Tree, *topology.CarriedNode) {
	t.Helper()
	tree, dp, err := topology.Build(gc, []byte(grammar), iteration, carried)
	require.NoError(t, err)
	return tree, dp
}

func ports(traces []TraceRecord) []int {
	out := make([]int, 0, len(traces))
	for _, tr := range traces {
		out = append(out, tr.Port)
	}
	return out
}

func TestHostsFromHops(t *testing.T) {
	tests := []struct {
		name      string
		hops      []string
		hostCount int
		want      []int
	}{
		{name: "all valid", hops: []string{"A", "C", "E"}, hostCount: 128, want: []int{0, 2, 4}},
		{name: "F maps to five", hops: []string{"F"}, hostCount: 8, want: []int{5}},
		{name: "out of range dropped", hops: []string{"B", "E"}, hostCount: 3, want: []int{1}},
		{name: "unknown token dropped", hops: []string{"Z", "A"}, hostCount: 8, want: []int{0}},
		{name: "nothing left", hops: []string{"D"}, hostCount: 2, want: nil},
		{name: "no hops", hops: nil, hostCount: 8, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HostsFromHops(tt.hops, tt.hostCount))
		})
	}
}

func TestGenerate_TwoIterations(t *testing.T) {
	gc := topology.NewContext(1)
	mem := sink.NewMemorySink()
	rec := metrics.New()
	o := New(mem, quietLogger(), rec, DefaultOptions())
	ctx := context.Background()

	tree0, dp0 := build(t, gc, twoIterationGrammar, 0, nil)
	r0, err := o.Generate(ctx, gc, tree0)
	require.NoError(t, err)

	// two TP rings then four DP hypercubes
	assert.Equal(t, 1000, r0.FirstPort)
	assert.Equal(t, []int{1000, 1001, 1002, 1003, 1004, 1005}, ports(r0.Traces))
	assert.Equal(t, 1006, r0.NextPort)
	assert.Equal(t, []sink.Key{
		{NodeID: "1_TP0", Group: 0}, {NodeID: "1_TP0", Group: 1},
		{NodeID: "2_DP1", Group: 0}, {NodeID: "2_DP1", Group: 1},
		{NodeID: "2_DP1", Group: 2}, {NodeID: "2_DP1", Group: 3},
	}, mem.Keys())

	ring, ok := mem.Get(sink.Key{NodeID: "1_TP0", Group: 1})
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(ring)), "\n")
	assert.Equal(t, "stat rdma operate:", lines[0])
	assert.Equal(t, "phase:3000", lines[1])
	assert.Equal(t, "Type rdma_send src_node 4 src_port 1001 dst_node 5 dst_port 1001 priority 0 msg_len 33554432", lines[2])
	assert.Equal(t, 7, strings.Count(string(ring), "phase:3000"))

	cube, ok := mem.Get(sink.Key{NodeID: "2_DP1", Group: 2})
	require.True(t, ok)
	assert.Contains(t, string(cube), "src_node 2 src_port 1004 dst_node 6 dst_port 1004 priority 0 msg_len 16777216")

	tree1, _ := build(t, gc, twoIterationGrammar, 1, dp0)
	r1, err := o.Generate(ctx, gc, tree1)
	require.NoError(t, err)

	assert.Equal(t, 2000, r1.FirstPort)
	assert.Equal(t, []int{2000, 2001, 2002, 2003, 2004, 2005, 2006, 2007}, ports(r1.Traces))

	// the carried DP node has no hops and is skipped
	require.NotEmpty(t, r1.Nodes)
	assert.Equal(t, "2_DP1", r1.Nodes[0].NodeID)
	assert.Equal(t, SkipNoHosts, r1.Nodes[0].SkipReason)

	nodes := make([]string, 0, len(r1.Nodes))
	for _, n := range r1.Nodes {
		nodes = append(nodes, n.NodeID)
	}
	assert.Equal(t, []string{"2_DP1", "3_TP17", "4_DP18", "5_TP34"}, nodes)
	assert.Equal(t, 8+6, mem.Len())
}

func TestGenerate_DeterministicAcrossWorkers(t *testing.T) {
	grammar := `qwen 2 2
0 TP Root --host_num 24 --num_nodes 3
1 DP TP1 --host_num 12 --dp 3
2 DP DP1 --host_num 20 --dp 5 --msg_len 1024*3
`
	run := func(workers int) *sink.MemorySink {
		gc := topology.NewContext(99)
		mem := sink.NewMemorySink()
		opts := DefaultOptions()
		opts.Workers = workers
		o := New(mem, quietLogger(), nil, opts)

		var carried *topology.CarriedNode
		for it := 0; it < 2; it++ {
			tree, dp := build(t, gc, grammar, it, carried)
			_, err := o.Generate(context.Background(), gc, tree)
			require.NoError(t, err)
			carried = dp
		}
		return mem
	}

	seq, par := run(1), run(4)
	require.Equal(t, seq.Keys(), par.Keys())
	for _, k := range seq.Keys() {
		a, _ := seq.Get(k)
		b, _ := par.Get(k)
		assert.Equal(t, string(a), string(b), "trace %s", k.Path())
	}
}

func TestGenerate_ClampsGroups(t *testing.T) {
	gc := topology.NewContext(3)
	mem := sink.NewMemorySink()
	rec := metrics.New()
	opts := DefaultOptions()
	opts.MaxGroups = 2
	o := New(mem, quietLogger(), rec, opts)

	tree, _ := build(t, gc, "qwen 1 1\n0 DP Root --host_num 8 --dp 2\n", 0, nil)
	r, err := o.Generate(context.Background(), gc, tree)
	require.NoError(t, err)

	require.Len(t, r.Nodes, 1)
	assert.Equal(t, 2, r.Nodes[0].Groups)
	assert.Equal(t, 2, r.Nodes[0].GroupsClamped)
	assert.Equal(t, []int{1000, 1001}, ports(r.Traces))
	assert.Equal(t, 2, mem.Len())
}

func TestGenerate_DivisibilitySkipsNode(t *testing.T) {
	grammar := `qwen 2 1
0 DP Root --host_num 10 --dp 3
0 PP Root --host_num 8 --dp 2
`
	gc := topology.NewContext(5)
	mem := sink.NewMemorySink()
	o := New(mem, quietLogger(), metrics.New(), DefaultOptions())

	tree, _ := build(t, gc, grammar, 0, nil)
	r, err := o.Generate(context.Background(), gc, tree)
	require.NoError(t, err)

	require.Len(t, r.Nodes, 2)
	assert.Equal(t, SkipPartition, r.Nodes[0].SkipReason)
	assert.Zero(t, r.Nodes[0].Groups)

	// the skipped node consumes no ports
	assert.Equal(t, types.ModePP, r.Nodes[1].Mode)
	assert.Equal(t, 2, r.Nodes[1].Groups)
	assert.Equal(t, []int{1000, 1001}, ports(r.Traces))
}

func TestGenerate_ExpertParallel(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		wantMode types.Mode
	}{
		{name: "qwen all-to-all", model: "qwen", wantMode: types.ModeEP},
		{name: "deepseek ring", model: "deepseek", wantMode: types.ModeTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grammar := fmt.Sprintf("%s 4 1\n0 DP Root --host_num 8 --dp 2\n1 EP DP1 --host_num 16 --dp 2 --num_nodes 2\n", tt.model)
			gc := topology.NewContext(8)
			mem := sink.NewMemorySink()
			o := New(mem, quietLogger(), nil, DefaultOptions())

			tree, _ := build(t, gc, grammar, 0, nil)
			r, err := o.Generate(context.Background(), gc, tree)
			require.NoError(t, err)
			require.Len(t, r.Nodes, 2)
			assert.Equal(t, tt.wantMode, r.Nodes[1].Mode)
			assert.Equal(t, 2, r.Nodes[1].Groups)
		})
	}

	gc := topology.NewContext(8)
	mem := sink.NewMemorySink()
	o := New(mem, quietLogger(), nil, DefaultOptions())
	tree, _ := build(t, gc, "qwen 4 1\n0 DP Root --host_num 8 --dp 2\n1 EP DP1 --host_num 16 --dp 2\n", 0, nil)
	_, err := o.Generate(context.Background(), gc, tree)
	require.NoError(t, err)

	trace, ok := mem.Get(sink.Key{NodeID: "2_EP1", Group: 1})
	require.True(t, ok)
	// group 1 of device 0 is {1, 5, 9, 13}: three all-to-all phases
	assert.Equal(t, 3, strings.Count(string(trace), "phase:3000"))
	assert.Contains(t, string(trace), "src_node 1 src_port 1005 dst_node 5 dst_port 1005")
}

func TestGenerate_BackwardPipeline(t *testing.T) {
	gc := topology.NewContext(2)
	mem := sink.NewMemorySink()
	o := New(mem, quietLogger(), nil, DefaultOptions())

	tree, _ := build(t, gc, "qwen 2 1\n0 PP Root --host_num 8 --dp 2 --forward 0 --msg_len 64\n0 DP Root --host_num 8\n", 0, nil)
	_, err := o.Generate(context.Background(), gc, tree)
	require.NoError(t, err)

	trace, ok := mem.Get(sink.Key{NodeID: "1_PP0", Group: 0})
	require.True(t, ok)
	assert.Equal(t, `stat rdma operate:
phase:3000
Type rdma_send src_node 2 src_port 1000 dst_node 0 dst_port 1000 priority 0 msg_len 64
Type rdma_send src_node 3 src_port 1000 dst_node 1 dst_port 1000 priority 0 msg_len 64
`, string(trace))
}

type failingSink struct{}

func (failingSink) Write(context.Context, sink.Key, []types.Phase) (string, error) {
	return "", stderrors.New("disk full")
}

func TestGenerate_SinkErrorIsFatal(t *testing.T) {
	gc := topology.NewContext(1)
	o := New(failingSink{}, quietLogger(), nil, DefaultOptions())

	tree, _ := build(t, gc, twoIterationGrammar, 0, nil)
	_, err := o.Generate(context.Background(), gc, tree)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSink))
	assert.True(t, errors.IsFatal(err))
}

func TestGenerate_Cancelled(t *testing.T) {
	gc := topology.NewContext(1)
	o := New(sink.NewMemorySink(), quietLogger(), nil, DefaultOptions())
	tree, _ := build(t, gc, twoIterationGrammar, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Generate(ctx, gc, tree)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthesize_GroupFailureIsIsolated(t *testing.T) {
	o := New(sink.NewMemorySink(), quietLogger(), nil, Options{Workers: 3})
	p := &plan{
		groups: 3,
		synth: func(g, port int, _ *rand.Rand) ([]types.Phase, error) {
			if g == 1 {
				return nil, errors.NewAlgorithmError("test", "broken group")
			}
			return []types.Phase{{types.NewDescriptor(g, g+1, port, 8, true)}}, nil
		},
	}
	jobs := []groupJob{{group: 0, port: 10}, {group: 1, port: 11}, {group: 2, port: 12}}

	results, err := o.synthesize(context.Background(), p, jobs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].err)
	assert.True(t, errors.IsLocal(results[1].err))
	assert.NoError(t, results[2].err)
	assert.Equal(t, 12, results[2].phases[0][0].SrcPort)
}

func TestCountNode_OnlyWithWrittenGroups(t *testing.T) {
	rec := metrics.New()
	o := New(sink.NewMemorySink(), quietLogger(), rec, DefaultOptions())

	o.countNode(&NodeReport{NodeID: "1_DP0", Mode: types.ModeDP, GroupsSkipped: 3})
	o.countNode(&NodeReport{NodeID: "2_TP1", Mode: types.ModeTP, Groups: 2, GroupsSkipped: 1})

	value := func(mode types.Mode) float64 {
		var m dto.Metric
		require.NoError(t, rec.NodesGenerated.WithLabelValues(string(mode)).Write(&m))
		return m.GetCounter().GetValue()
	}
	assert.Equal(t, 0.0, value(types.ModeDP))
	assert.Equal(t, 1.0, value(types.ModeTP))

	New(sink.NewMemorySink(), quietLogger(), nil, DefaultOptions()).countNode(&NodeReport{Groups: 1})
}

func TestGenerate_LargeNodeBuildsOnlyKeptGroups(t *testing.T) {
	tests := []struct {
		name    string
		grammar string
		clamped int
	}{
		{name: "data parallel", grammar: "qwen 1 1\n0 DP Root --host_num 4194304 --dp 2\n", clamped: 2097149},
		{name: "pipeline", grammar: "qwen 1 1\n0 PP Root --host_num 2097152 --dp 1048576\n0 DP Root --host_num 4\n", clamped: 1048573},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc := topology.NewContext(1)
			mem := sink.NewMemorySink()
			opts := DefaultOptions()
			opts.MaxGroups = 3
			o := New(mem, quietLogger(), nil, opts)

			tree, _ := build(t, gc, tt.grammar, 0, nil)
			r, err := o.Generate(context.Background(), gc, tree)
			require.NoError(t, err)

			assert.Equal(t, 3, r.Nodes[0].Groups)
			assert.Equal(t, tt.clamped, r.Nodes[0].GroupsClamped)
			assert.Equal(t, []int{1000, 1001, 1002}, ports(r.Traces)[:3])
		})
	}
}
