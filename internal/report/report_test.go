package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/collective-traffic-gen/internal/orchestrator"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

func sampleSummary() *RunSummary {
	s := &RunSummary{
		RunID:       "run-7f6c",
		GrammarPath: "topology.txt",
		Model:       types.ModelQwen,
		Devices:     4,
		Iterations:  2,
		Seed:        42,
		Workers:     1,
		Output:      "rdma_result",
		StartedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2024, 5, 1, 10, 0, 3, 0, time.UTC),
	}
	s.AddIteration(&orchestrator.IterationReport{
		Iteration: 0,
		FirstPort: 1000,
		NextPort:  1003,
		Nodes: []orchestrator.NodeReport{
			{NodeID: "1_TP0", Groups: 2},
			{NodeID: "2_DP1", Groups: 1},
		},
		Traces: []orchestrator.TraceRecord{
			{NodeID: "1_TP0", Group: 0, Port: 1000, Descriptors: 14},
			{NodeID: "1_TP0", Group: 1, Port: 1001, Descriptors: 14},
			{NodeID: "2_DP1", Group: 0, Port: 1002, Descriptors: 4},
		},
	})
	s.AddIteration(&orchestrator.IterationReport{
		Iteration: 1,
		FirstPort: 2000,
		NextPort:  2000,
		Nodes:     []orchestrator.NodeReport{{NodeID: "2_DP1", SkipReason: orchestrator.SkipNoHosts}},
	})
	return s
}

func TestRunSummary_AddIteration(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, 3, s.Traces)
	assert.Equal(t, 32, s.Descriptors)
	require.Len(t, s.PerIteration, 2)
	assert.Equal(t, IterationSummary{Iteration: 0, Nodes: 2, Traces: 3, Descriptors: 32, FirstPort: 1000, NextPort: 1003}, s.PerIteration[0])
	assert.Equal(t, 1, s.PerIteration[1].NodesSkipped)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path      string
		want      Format
		wantError bool
	}{
		{path: "summary.yaml", want: FormatYAML},
		{path: "out/summary.YML", want: FormatYAML},
		{path: "summary.toml", want: FormatTOML},
		{path: "summary.json", want: FormatJSON},
		{path: "summary.txt", wantError: true},
		{path: "summary", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrite_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "summary.yaml")
	require.NoError(t, Write(sampleSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: run-7f6c")
	assert.Contains(t, string(data), "per_iteration:")

	var decoded RunSummary
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(42), decoded.Seed)
	assert.Equal(t, sampleSummary().PerIteration, decoded.PerIteration)
	assert.True(t, decoded.FinishedAt.Equal(sampleSummary().FinishedAt))
}

func TestWrite_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.toml")
	require.NoError(t, Write(sampleSummary(), path))

	var decoded RunSummary
	_, err := toml.DecodeFile(path, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "run-7f6c", decoded.RunID)
	assert.Equal(t, types.ModelQwen, decoded.Model)
	assert.Equal(t, 32, decoded.Descriptors)
	require.Len(t, decoded.PerIteration, 2)
	assert.Equal(t, 2000, decoded.PerIteration[1].FirstPort)
}

func TestWrite_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, Write(sampleSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"model": "qwen"`)
	assert.Contains(t, string(data), `"first_port": 2000`)
}

func TestWrite_UnsupportedExtension(t *testing.T) {
	err := Write(sampleSummary(), filepath.Join(t.TempDir(), "summary.csv"))
	assert.Error(t, err)
}
