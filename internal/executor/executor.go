package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/prober"
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type TrafficController interface {
	SetTrafficSplit(ctx context.Context, source, target failover.EndpointID, percentage int) error
}

type Prober interface {
	Probe(ctx context.Context, address string, healthPath string) prober.Result
}

type Notifier interface {
	Notify(kind notifyer.Kind, event failover.FailoverEvent)
}

// EndpointRegistry is the executor's narrow view of the orchestrator's
// registry: shift load between endpoints after the drain.
type EndpointRegistry interface {
	MoveLoad(from, to failover.EndpointID) int64
}

// Request carries everything one execution needs. ConditionsFiring
// re-evaluates the triggering rule's conditions, the canary observation
// window uses it; nil means no re-evaluation (manual trigger).
type Request struct {
	Event            *failover.FailoverEvent
	Source           failover.ServiceEndpoint
	Target           failover.ServiceEndpoint
	Strategy         failover.FailoverStrategy
	ConditionsFiring func() bool
}

// Executor drives one FailoverEvent through
// TRIGGERED -> IN_PROGRESS -> {COMPLETED | FAILED}. All event status
// mutations go through the orchestrator-provided transition callback so
// the registry stays the single owner of event state.
type Executor struct {
	traffic    TrafficController
	prober     Prober
	notifier   Notifier
	registry   EndpointRegistry
	transition func(ev *failover.FailoverEvent, status failover.EventStatus)
}

func New(
	traffic TrafficController,
	prb Prober,
	notifier Notifier,
	registry EndpointRegistry,
	transition func(ev *failover.FailoverEvent, status failover.EventStatus),
) *Executor {
	return &Executor{
		traffic:    traffic,
		prober:     prb,
		notifier:   notifier,
		registry:   registry,
		transition: transition,
	}
}

func (ex *Executor) Execute(ctx context.Context, req Request) error {
	ev := req.Event
	ex.transition(ev, failover.EventInProgress)
	log.Info().Msgf("executing failover %s: %s -> %s strategy=%s",
		ev.ID, ev.Source, ev.Target, req.Strategy.Type)

	if req.Strategy.ValidateTarget {
		if result := ex.prober.Probe(ctx, req.Target.Address, req.Target.HealthPath); !result.OK() {
			// nothing shifted yet, no rollback to do
			return ex.fail(ctx, req, false, "target validation probe returned %s", result.Outcome)
		}
	}

	if err := ex.shiftTraffic(ctx, req); err != nil {
		return err
	}

	ev.AffectedConnections = ex.drain(ctx, req)

	ev.Duration = time.Since(ev.CreatedAt)
	ex.transition(ev, failover.EventCompleted)
	ex.notifier.Notify(notifyer.FailoverCompleted, *ev)
	log.Info().Msgf("failover %s completed in %s, affected connections: %d",
		ev.ID, ev.Duration, ev.AffectedConnections)
	return nil
}

func (ex *Executor) shiftTraffic(ctx context.Context, req Request) error {
	switch req.Strategy.Type {
	case failover.StrategyImmediate:
		return ex.cutover(ctx, req, 100)

	case failover.StrategyGradual, failover.StrategyWeightedRR:
		for pct := req.Strategy.StepPercentage; ; pct += req.Strategy.StepPercentage {
			if pct > 100 {
				pct = 100
			}
			if err := ex.cutover(ctx, req, pct); err != nil {
				return err
			}
			if pct == 100 {
				return nil
			}
			if err := ex.wait(ctx, req.Strategy.StepInterval); err != nil {
				return ex.fail(ctx, req, req.Strategy.RollbackOnFailure, "aborted between traffic steps: %v", err)
			}
		}

	case failover.StrategyBlueGreen:
		// warm validation pass before the atomic swap
		if result := ex.prober.Probe(ctx, req.Target.Address, req.Target.HealthPath); !result.OK() {
			return ex.fail(ctx, req, false, "blue/green warm validation returned %s", result.Outcome)
		}
		return ex.cutover(ctx, req, 100)

	case failover.StrategyCanary:
		if err := ex.cutover(ctx, req, req.Strategy.CanaryPercentage); err != nil {
			return err
		}
		if err := ex.wait(ctx, req.Strategy.ObservationWindow); err != nil {
			return ex.fail(ctx, req, true, "aborted during canary observation: %v", err)
		}
		if req.ConditionsFiring != nil && req.ConditionsFiring() {
			// conditions still failing with the canary share shifted
			return ex.fail(ctx, req, true, "canary observed new condition failures")
		}
		return ex.cutover(ctx, req, 100)
	}
	return ex.fail(ctx, req, false, "unknown strategy type %q", req.Strategy.Type)
}

func (ex *Executor) cutover(ctx context.Context, req Request, pct int) error {
	err := ex.traffic.SetTrafficSplit(ctx, req.Source.ID, req.Target.ID, pct)
	if err != nil {
		return ex.fail(ctx, req, req.Strategy.RollbackOnFailure, "traffic split to %d%% failed: %v", pct, err)
	}
	log.Debug().Msgf("failover %s: %d%% of %s traffic now on %s", req.Event.ID, pct, req.Source.ID, req.Target.ID)
	return nil
}

// drain waits out the drain timeout for in-flight connections on the
// source, whatever is still open past the timeout is counted as
// affected and moved, not blocked on.
func (ex *Executor) drain(ctx context.Context, req Request) int64 {
	if req.Strategy.DrainTimeout > 0 {
		_ = ex.wait(ctx, req.Strategy.DrainTimeout)
	}
	return ex.registry.MoveLoad(req.Source.ID, req.Target.ID)
}

func (ex *Executor) fail(ctx context.Context, req Request, rollback bool, format string, args ...any) error {
	ev := req.Event
	if rollback {
		// ctx may already be dead, rollback must still reach the controller
		err := ex.traffic.SetTrafficSplit(context.WithoutCancel(ctx), req.Source.ID, req.Target.ID, 0)
		if err != nil {
			log.Error().Err(err).Msgf("failover %s: rollback traffic revert failed", ev.ID)
		}
	}
	execErr := failover.NewError(failover.KindExecution, string(ev.Source), format, args...)
	ev.Duration = time.Since(ev.CreatedAt)
	ev.Reason = execErr.Reason
	ex.transition(ev, failover.EventFailed)
	ex.notifier.Notify(notifyer.FailoverFailed, *ev)
	log.Error().Msgf("failover %s failed: %s (rollback=%t)", ev.ID, execErr.Reason, rollback)
	return execErr
}

func (ex *Executor) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
