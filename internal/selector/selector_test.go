package selector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

func pool() []failover.ServiceEndpoint {
	return []failover.ServiceEndpoint{
		{ID: "web-1", Name: "web-1", Region: "eu", Priority: 1, Capacity: 100, CurrentLoad: 90, Status: failover.StatusUnhealthy},
		{ID: "web-2", Name: "web-2", Region: "eu", Priority: 2, Capacity: 100, CurrentLoad: 20, Status: failover.StatusHealthy},
		{ID: "web-3", Name: "web-3", Region: "us", Priority: 1, Capacity: 100, CurrentLoad: 50, Status: failover.StatusHealthy},
		{ID: "web-4", Name: "web-4", Region: "us", Priority: 3, Capacity: 200, CurrentLoad: 10, Status: failover.StatusDegraded},
	}
}

func source() failover.ServiceEndpoint {
	return failover.ServiceEndpoint{ID: "web-1", Region: "eu", Priority: 1}
}

func TestHighestPriority(t *testing.T) {
	sel := New()
	target, err := sel.Select(failover.SelectHighestPriority, source(), pool(), nil)
	require.NoError(t, err)
	// web-1 is the source, web-3 has the lowest priority value left
	require.Equal(t, failover.EndpointID("web-3"), target.ID)
}

func TestHighestPriorityTieBreaksByLoad(t *testing.T) {
	sel := New()
	candidates := []failover.ServiceEndpoint{
		{ID: "a", Priority: 1, Capacity: 100, CurrentLoad: 60, Status: failover.StatusHealthy},
		{ID: "b", Priority: 1, Capacity: 100, CurrentLoad: 10, Status: failover.StatusHealthy},
	}
	target, err := sel.Select(failover.SelectHighestPriority, source(), candidates, nil)
	require.NoError(t, err)
	require.Equal(t, failover.EndpointID("b"), target.ID)
}

func TestLowestLoad(t *testing.T) {
	sel := New()
	target, err := sel.Select(failover.SelectLowestLoad, source(), pool(), nil)
	require.NoError(t, err)
	// web-4: 10/200 is the smallest ratio
	require.Equal(t, failover.EndpointID("web-4"), target.ID)
}

func TestClosestRegionPrefersSourceRegion(t *testing.T) {
	sel := New()
	target, err := sel.Select(failover.SelectClosestRegion, source(), pool(), nil)
	require.NoError(t, err)
	require.Equal(t, failover.EndpointID("web-2"), target.ID)
}

func TestClosestRegionFallsBackToPriority(t *testing.T) {
	sel := New()
	src := failover.ServiceEndpoint{ID: "web-9", Region: "ap"}
	target, err := sel.Select(failover.SelectClosestRegion, src, pool(), nil)
	require.NoError(t, err)
	require.Equal(t, failover.EndpointID("web-3"), target.ID)
}

func TestRoundRobinRotates(t *testing.T) {
	sel := New()
	seen := make(map[failover.EndpointID]int)
	for i := 0; i < 6; i++ {
		target, err := sel.Select(failover.SelectRoundRobin, source(), pool(), nil)
		require.NoError(t, err)
		seen[target.ID]++
	}
	// three viable candidates, each picked twice
	require.Len(t, seen, 3)
	for id, n := range seen {
		require.Equal(t, 2, n, "endpoint %s", id)
	}
}

func TestRandomPicksViableCandidate(t *testing.T) {
	sel := New()
	for i := 0; i < 20; i++ {
		target, err := sel.Select(failover.SelectRandom, source(), pool(), nil)
		require.NoError(t, err)
		require.NotEqual(t, failover.EndpointID("web-1"), target.ID)
		require.NotEqual(t, failover.StatusUnhealthy, target.Status)
	}
}

func TestExclusions(t *testing.T) {
	sel := New()
	excluded := map[failover.EndpointID]struct{}{
		"web-2": {},
		"web-3": {},
	}
	target, err := sel.Select(failover.SelectHighestPriority, source(), pool(), excluded)
	require.NoError(t, err)
	require.Equal(t, failover.EndpointID("web-4"), target.ID)
}

func TestNoEligibleTarget(t *testing.T) {
	sel := New()
	unhealthy := []failover.ServiceEndpoint{
		{ID: "web-2", Status: failover.StatusUnhealthy},
		{ID: "web-3", Status: failover.StatusMaintenance},
		{ID: "web-4", Status: failover.StatusUnknown},
	}
	_, err := sel.Select(failover.SelectHighestPriority, source(), unhealthy, nil)
	require.Error(t, err)
	require.True(t, failover.IsKind(err, failover.KindNoEligibleTarget))
}
