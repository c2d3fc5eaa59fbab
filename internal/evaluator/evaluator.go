package evaluator

import (
	"time"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/metricstore"
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type MetricSource interface {
	Aggregate(id failover.EndpointID, metric string, dur time.Duration, agg metricstore.Aggregation) (float64, int)
}

// Evaluator checks a rule's conditions against the metric store.
// Conditions AND together, missing or insufficient data fails the
// condition: never fire on what we did not observe.
type Evaluator struct {
	source     MetricSource
	minSamples int
}

func New(source MetricSource, minSamples int) *Evaluator {
	if minSamples <= 0 {
		minSamples = 1
	}
	return &Evaluator{
		source:     source,
		minSamples: minSamples,
	}
}

// EvaluateAll returns whether every condition passed plus the full
// per-condition snapshot for auditability.
func (e *Evaluator) EvaluateAll(id failover.EndpointID, conds []failover.FailoverCondition) (bool, []failover.ConditionSnapshot) {
	passed := true
	snapshots := make([]failover.ConditionSnapshot, 0, len(conds))
	for i := range conds {
		snap := e.evaluate(id, &conds[i])
		if !snap.Passed {
			passed = false
		}
		snapshots = append(snapshots, snap)
	}
	return passed, snapshots
}

func (e *Evaluator) evaluate(id failover.EndpointID, cond *failover.FailoverCondition) failover.ConditionSnapshot {
	actual, samples := e.source.Aggregate(id, cond.Metric, cond.Duration, aggregationFor(cond.Signal))
	snap := failover.ConditionSnapshot{
		Metric:    cond.Metric,
		Operator:  cond.Operator,
		Threshold: cond.Threshold,
		Actual:    actual,
		Samples:   samples,
	}
	if samples < e.minSamples {
		return snap
	}
	snap.Passed = cond.Operator.Compare(actual, cond.Threshold)
	return snap
}

func aggregationFor(signal failover.Signal) metricstore.Aggregation {
	switch signal {
	case failover.SignalLatency, failover.SignalErrorRate,
		failover.SignalResourceUsage, failover.SignalCustom:
		return metricstore.AggAvg
	default:
		// probe_failure reads the consecutive failure streak, the store
		// handles that metric specially whatever aggregation is asked.
		return metricstore.AggMax
	}
}
