package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/metricstore"
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

const ep = failover.EndpointID("web-1")

func failureStreakCondition(threshold float64) failover.FailoverCondition {
	return failover.FailoverCondition{
		Metric:    failover.MetricConsecutiveFailures,
		Operator:  failover.OpGTE,
		Threshold: threshold,
		Duration:  30 * time.Second,
		Signal:    failover.SignalProbeFailure,
	}
}

func TestConsecutiveFailuresCondition(t *testing.T) {
	store := metricstore.New(16)
	eval := New(store, 1)

	// three consecutive failed probes vs threshold 2
	for i := 0; i < 3; i++ {
		store.Record(ep, metricstore.Sample{Success: false})
	}
	passed, snaps := eval.EvaluateAll(ep, []failover.FailoverCondition{failureStreakCondition(2)})
	require.True(t, passed)
	require.Len(t, snaps, 1)
	require.True(t, snaps[0].Passed)
	require.InDelta(t, 3, snaps[0].Actual, 0.1)
	require.InDelta(t, 2, snaps[0].Threshold, 0.1)

	// a single failure does not pass
	other := failover.EndpointID("web-2")
	store.Record(other, metricstore.Sample{Success: false})
	passed, snaps = eval.EvaluateAll(other, []failover.FailoverCondition{failureStreakCondition(2)})
	require.False(t, passed)
	require.False(t, snaps[0].Passed)
	require.InDelta(t, 1, snaps[0].Actual, 0.1)
}

func TestMissingDataNeverFires(t *testing.T) {
	store := metricstore.New(16)
	eval := New(store, 1)

	passed, snaps := eval.EvaluateAll("ghost", []failover.FailoverCondition{failureStreakCondition(0)})
	require.False(t, passed)
	require.False(t, snaps[0].Passed)
	require.Zero(t, snaps[0].Samples)
}

func TestMinSamplesGate(t *testing.T) {
	store := metricstore.New(16)
	eval := New(store, 3)

	cond := failover.FailoverCondition{
		Metric:    failover.MetricErrorRate,
		Operator:  failover.OpGT,
		Threshold: 0.5,
		Duration:  time.Minute,
		Signal:    failover.SignalErrorRate,
	}
	store.Record(ep, metricstore.Sample{Success: false})
	store.Record(ep, metricstore.Sample{Success: false})
	passed, _ := eval.EvaluateAll(ep, []failover.FailoverCondition{cond})
	require.False(t, passed, "two samples must not satisfy minSamples=3")

	store.Record(ep, metricstore.Sample{Success: false})
	passed, _ = eval.EvaluateAll(ep, []failover.FailoverCondition{cond})
	require.True(t, passed)
}

func TestConditionsAreConjunctive(t *testing.T) {
	store := metricstore.New(16)
	eval := New(store, 1)

	store.Record(ep, metricstore.Sample{Success: false, Latency: 50 * time.Millisecond})

	conds := []failover.FailoverCondition{
		{
			Metric:    failover.MetricErrorRate,
			Operator:  failover.OpGT,
			Threshold: 0.5,
			Duration:  time.Minute,
			Signal:    failover.SignalErrorRate,
		},
		{
			Metric:    failover.MetricLatency,
			Operator:  failover.OpGT,
			Threshold: 500,
			Duration:  time.Minute,
			Signal:    failover.SignalLatency,
		},
	}
	passed, snaps := eval.EvaluateAll(ep, conds)
	require.False(t, passed)
	require.True(t, snaps[0].Passed)
	require.False(t, snaps[1].Passed, "latency condition should hold the rule back")
}
