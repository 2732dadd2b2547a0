package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
)

func TestForDP(t *testing.T) {
	groups, err := ForDP(8, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 4}, {1, 5}, {2, 6}, {3, 7}}, groups)

	seen := make(map[int]int)
	members := 0
	for _, g := range groups {
		assert.Len(t, g, 2)
		for _, h := range g {
			seen[h]++
			members++
		}
	}
	assert.Equal(t, 8, members)
	assert.Len(t, seen, 8)
	for h, n := range seen {
		assert.Equal(t, 1, n, "host %d", h)
	}
}

func TestForDP_Errors(t *testing.T) {
	tests := []struct {
		name      string
		hostCount int
		dp        int
	}{
		{"not divisible", 10, 3},
		{"zero dp", 8, 0},
		{"negative dp", 8, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ForDP(tt.hostCount, tt.dp, 0)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeDivisibility))
		})
	}
}

func TestForEP(t *testing.T) {
	tests := []struct {
		name        string
		hostCount   int
		dp          int
		device      int
		deviceCount int
		want        [][]int
	}{
		{
			name:      "device 0 of 2",
			hostCount: 16, dp: 2, device: 0, deviceCount: 2,
			want: [][]int{{0, 8}, {1, 9}, {2, 10}, {3, 11}},
		},
		{
			name:      "device 1 of 2",
			hostCount: 16, dp: 2, device: 1, deviceCount: 2,
			want: [][]int{{4, 12}, {5, 13}, {6, 14}, {7, 15}},
		},
		{
			name:      "span rounds to zero",
			hostCount: 4, dp: 4, device: 0, deviceCount: 2,
			want: [][]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ForEP(tt.hostCount, tt.dp, tt.device, tt.deviceCount, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ForEP(10, 4, 0, 1, 0)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDivisibility))
}

func TestPipelinePairs(t *testing.T) {
	pairs := PipelinePairs(8, 2, 2, 0)
	require.NotEmpty(t, pairs)
	assert.Equal(t, []Pair{{0, 2}, {1, 3}, {4, 6}, {5, 7}}, pairs)
	for _, p := range pairs {
		assert.Equal(t, 2, p.Dst-p.Src)
		assert.Less(t, p.Src, 8)
		assert.Less(t, p.Dst, 16)
	}

	assert.Nil(t, PipelinePairs(8, 0, 2, 0))
}

func TestGroupLimits(t *testing.T) {
	n, err := DPGroupCount(1<<30, 2)
	require.NoError(t, err)
	assert.Equal(t, 1<<29, n)

	groups, err := ForDP(8, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 4}, {1, 5}, {2, 6}}, groups)

	groups, err = ForDP(8, 2, 10)
	require.NoError(t, err)
	assert.Len(t, groups, 4)

	n, err = EPGroupCount(16, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	groups, err = ForEP(16, 2, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{4, 12}, {5, 13}}, groups)

	_, err = EPGroupCount(16, 2, 0)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDivisibility))

	assert.Equal(t, []Pair{{0, 2}, {1, 3}, {4, 6}}, PipelinePairs(8, 2, 2, 3))
	assert.Len(t, PipelinePairs(1<<30, 2, 2, 4), 4)
}

func TestPipelineGroup(t *testing.T) {
	pairs := PipelinePairs(8, 2, 2, 0)
	perGroup := PipelineGroupSize(8, 2, 2)
	assert.Equal(t, 2, perGroup)

	assert.Equal(t, []Pair{{0, 2}, {1, 3}}, PipelineGroup(pairs, 0, perGroup, 8, 2))
	assert.Equal(t, []Pair{{4, 6}, {5, 7}}, PipelineGroup(pairs, 1, perGroup, 8, 2))
	assert.Nil(t, PipelineGroup(pairs, 2, perGroup, 8, 2))
}

func TestTensorGroupCount(t *testing.T) {
	n, err := TensorGroupCount(128, 2, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = TensorGroupCount(100, 2, 8)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDivisibility))

	_, err = TensorGroupCount(128, 2, 0)
	assert.Error(t, err)
}
