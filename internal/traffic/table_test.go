package traffic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

func TestSplitAlwaysSumsTo100(t *testing.T) {
	table := NewTable()
	ctx := context.Background()

	for _, pct := range []int{10, 35, 60, 100, 40, 0} {
		require.NoError(t, table.SetTrafficSplit(ctx, "web-1", "web-2", pct))
		total := 0
		for _, share := range table.Split("web-1") {
			total += share
		}
		require.Equal(t, 100, total, "after step to %d%%", pct)
	}
}

func TestFullCutover(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.SetTrafficSplit(context.Background(), "web-1", "web-2", 100))

	split := table.Split("web-1")
	require.Equal(t, 0, split["web-1"])
	require.Equal(t, 100, split["web-2"])
	require.Equal(t, 100, table.TargetShare("web-1", "web-2"))
}

func TestZeroShareRemovesTarget(t *testing.T) {
	table := NewTable()
	ctx := context.Background()
	require.NoError(t, table.SetTrafficSplit(ctx, "web-1", "web-2", 40))
	require.NoError(t, table.SetTrafficSplit(ctx, "web-1", "web-2", 0))

	split := table.Split("web-1")
	require.Equal(t, 100, split["web-1"])
	_, exists := split["web-2"]
	require.False(t, exists)
}

func TestRejectsOutOfRangePercentage(t *testing.T) {
	table := NewTable()
	err := table.SetTrafficSplit(context.Background(), "web-1", "web-2", 101)
	require.True(t, failover.IsKind(err, failover.KindValidation))
	require.Error(t, table.SetTrafficSplit(context.Background(), "web-1", "web-2", -1))
}
