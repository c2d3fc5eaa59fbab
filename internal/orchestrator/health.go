package orchestrator

import (
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

// healthTracker derives endpoint status from probe outcomes with
// hysteresis: a run of successes is needed before passing, a run of
// failures before critical. A single failure already degrades.
type healthTracker struct {
	successBeforePassing   uint8
	failuresBeforeCritical uint8

	curSuccess  uint8
	curFailures uint8

	status failover.EndpointStatus
}

func newHealthTracker(successBeforePassing, failuresBeforeCritical uint8) *healthTracker {
	if successBeforePassing == 0 {
		successBeforePassing = 1
	}
	if failuresBeforeCritical == 0 {
		failuresBeforeCritical = 1
	}
	return &healthTracker{
		successBeforePassing:   successBeforePassing,
		failuresBeforeCritical: failuresBeforeCritical,
		status:                 failover.StatusUnknown,
	}
}

func (t *healthTracker) apply(ok bool) failover.EndpointStatus {
	if ok {
		t.curSuccess++
		t.curFailures = 0
		if t.curSuccess >= t.successBeforePassing {
			t.status = failover.StatusHealthy
		}
		return t.status
	}
	t.curFailures++
	t.curSuccess = 0
	if t.curFailures >= t.failuresBeforeCritical {
		t.status = failover.StatusUnhealthy
	} else {
		t.status = failover.StatusDegraded
	}
	return t.status
}
