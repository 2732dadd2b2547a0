package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/collective-traffic-gen/internal/orchestrator"
	"github.com/scttfrdmn/collective-traffic-gen/internal/topology"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

func TestPrintTree(t *testing.T) {
	color.NoColor = true

	gc := topology.NewContext(1)
	tree, _, err := topology.Build(gc, []byte("qwen 4 1\n0 TP Root --host_num 16 --num_nodes 2\n1 DP TP1 --host_num 8 --dp 2\n"), 0, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	printTree(&buf, tree, nil)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Root", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "└── 1_TP0 layer=0 host_num=16 num_nodes=2"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "    └── 2_DP1 layer=1 host_num=8 dp=2"), lines[2])
}

func TestNodeTraffic(t *testing.T) {
	rep := &orchestrator.IterationReport{
		Nodes: []orchestrator.NodeReport{
			{NodeID: "1_TP0", Mode: types.ModeTP, Groups: 2},
			{NodeID: "2_DP1", Mode: types.ModeDP, SkipReason: orchestrator.SkipNoHosts},
		},
		Traces: []orchestrator.TraceRecord{
			{NodeID: "1_TP0", Port: 1000},
			{NodeID: "1_TP0", Port: 1001},
		},
	}

	got := nodeTraffic(rep)
	require.Len(t, got, 2)
	assert.Equal(t, 1000, got["1_TP0"].firstPort)
	assert.Equal(t, 1001, got["1_TP0"].lastPort)
	assert.Zero(t, got["2_DP1"].firstPort)

	color.NoColor = true
	node := &topology.Node{ID: "2_DP1", Kind: types.KindDP, Layer: 1, Args: types.DefaultCommArgs()}
	assert.Contains(t, describeNode(node, got), "skipped (no_hosts)")
}
