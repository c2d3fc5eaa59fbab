package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/prober"
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type fakeTraffic struct {
	mu    sync.Mutex
	calls []int
}

func (f *fakeTraffic) SetTrafficSplit(_ context.Context, _, _ failover.EndpointID, pct int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pct)
	return nil
}

func (f *fakeTraffic) recorded() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []notifyer.Kind
}

func (f *fakeNotifier) Notify(kind notifyer.Kind, _ failover.FailoverEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func testEvent() *failover.FailoverEvent {
	return &failover.FailoverEvent{
		ID:        "ev-1",
		CreatedAt: time.Now(),
		Source:    "web-1",
		Target:    "web-2",
		Status:    failover.EventCompleted,
	}
}

func testSource() failover.ServiceEndpoint {
	return failover.ServiceEndpoint{ID: "web-1", Address: "10.0.0.1:80", HealthPath: "/healthz"}
}

func recordTransition(ev *failover.FailoverEvent, status failover.EventStatus) {
	ev.Status = status
}

func autoStrategy(required int) failover.RecoveryStrategy {
	return failover.RecoveryStrategy{
		Type:                       failover.RecoveryAutomatic,
		HealthCheckInterval:        time.Millisecond,
		ConsecutiveSuccessRequired: required,
		InitialPercentage:          50,
		IncrementPercentage:        50,
		IncrementInterval:          time.Millisecond,
	}
}

func TestFailureResetsSuccessStreak(t *testing.T) {
	// success, success, failure: the streak starts over, so three more
	// successes are needed before the ramp may begin.
	prb := prober.NewMockProber(
		prober.OutcomeSuccess,
		prober.OutcomeSuccess,
		prober.OutcomeFailure,
		prober.OutcomeSuccess,
	)
	trafficCtl := &fakeTraffic{}
	mon := New(prb, trafficCtl, &fakeNotifier{})
	ev := testEvent()

	mon.Run(context.Background(), ev, testSource(), autoStrategy(3), Hooks{Transition: recordTransition})

	require.Equal(t, failover.EventRecovered, ev.Status)
	require.Equal(t, 6, prb.Probed, "interrupted streak must restart from zero")
}

func TestRampRestoresSourceStepwise(t *testing.T) {
	trafficCtl := &fakeTraffic{}
	notifier := &fakeNotifier{}
	mon := New(prober.NewMockProber(), trafficCtl, notifier)
	ev := testEvent()

	recovered := false
	mon.Run(context.Background(), ev, testSource(), autoStrategy(1), Hooks{
		Transition:  recordTransition,
		OnRecovered: func(*failover.FailoverEvent) { recovered = true },
	})

	// target share shrinks as the source takes traffic back
	require.Equal(t, []int{50, 0}, trafficCtl.recorded())
	require.Equal(t, failover.EventRecovered, ev.Status)
	require.False(t, ev.RecoveredAt.IsZero())
	require.True(t, recovered)
	require.Equal(t, []notifyer.Kind{notifyer.RecoveryStarted, notifyer.RecoveryCompleted}, notifier.kinds)
}

func TestManualRecoveryParks(t *testing.T) {
	notifier := &fakeNotifier{}
	mon := New(prober.NewMockProber(), &fakeTraffic{}, notifier)
	ev := testEvent()

	rec := autoStrategy(1)
	rec.Type = failover.RecoveryManual
	mon.Run(context.Background(), ev, testSource(), rec, Hooks{Transition: recordTransition})

	require.Equal(t, failover.EventRecovering, ev.Status)
	require.Equal(t, []notifyer.Kind{notifyer.RecoveryStarted}, notifier.kinds)
}

func TestRollbackConditionAbortsRamp(t *testing.T) {
	trafficCtl := &fakeTraffic{}
	notifier := &fakeNotifier{}
	mon := New(prober.NewMockProber(), trafficCtl, notifier)
	ev := testEvent()

	mon.Run(context.Background(), ev, testSource(), autoStrategy(1), Hooks{
		Transition:      recordTransition,
		RollbackTripped: func() bool { return true },
	})

	// everything back on the target, event parked in RECOVERING
	require.Equal(t, []int{100}, trafficCtl.recorded())
	require.Equal(t, failover.EventRecovering, ev.Status)
	require.Contains(t, notifier.kinds, notifyer.RecoveryAborted)
}

func TestHybridRetriesAfterRollback(t *testing.T) {
	trafficCtl := &fakeTraffic{}
	mon := New(prober.NewMockProber(), trafficCtl, &fakeNotifier{})
	ev := testEvent()

	trips := 0
	rec := autoStrategy(1)
	rec.Type = failover.RecoveryHybrid
	mon.Run(context.Background(), ev, testSource(), rec, Hooks{
		Transition: recordTransition,
		RollbackTripped: func() bool {
			trips++
			return trips == 1
		},
	})

	require.Equal(t, failover.EventRecovered, ev.Status)
	// revert to 100, then a clean 50/0 ramp
	require.Equal(t, []int{100, 50, 0}, trafficCtl.recorded())
}

func TestCancelledContextStopsSupervision(t *testing.T) {
	mon := New(prober.NewMockProber(), &fakeTraffic{}, &fakeNotifier{})
	ev := testEvent()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mon.Run(ctx, ev, testSource(), autoStrategy(1), Hooks{Transition: recordTransition})

	require.Equal(t, failover.EventRecovering, ev.Status)
}
