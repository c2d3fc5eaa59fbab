package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/prober"
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type Prober interface {
	Probe(ctx context.Context, address string, healthPath string) prober.Result
}

type TrafficController interface {
	SetTrafficSplit(ctx context.Context, source, target failover.EndpointID, percentage int) error
}

type Notifier interface {
	Notify(kind notifyer.Kind, event failover.FailoverEvent)
}

// Hooks are the orchestrator's levers handed to one recovery run.
type Hooks struct {
	Transition func(ev *failover.FailoverEvent, status failover.EventStatus)
	// RollbackTripped evaluates the recovery strategy's rollback
	// conditions against the metric store.
	RollbackTripped func() bool
	// OnRecovered resets cooldown/rate-limit counters for the endpoint.
	OnRecovered func(ev *failover.FailoverEvent)
}

// Monitor supervises one failed-over source endpoint back to health and
// ramps its traffic back. Each event gets its own Run goroutine,
// independent of the detection loop.
type Monitor struct {
	prober   Prober
	traffic  TrafficController
	notifier Notifier
}

func New(prb Prober, traffic TrafficController, notifier Notifier) *Monitor {
	return &Monitor{
		prober:   prb,
		traffic:  traffic,
		notifier: notifier,
	}
}

// Run drives COMPLETED -> RECOVERING -> RECOVERED. On a tripped rollback
// condition the event is left in RECOVERING: manual recovery waits for
// an operator, hybrid starts the health gate over.
func (m *Monitor) Run(
	ctx context.Context,
	ev *failover.FailoverEvent,
	source failover.ServiceEndpoint,
	rec failover.RecoveryStrategy,
	hooks Hooks,
) {
	hooks.Transition(ev, failover.EventRecovering)
	m.notifier.Notify(notifyer.RecoveryStarted, *ev)
	log.Info().Msgf("recovery started for %s (event %s, type=%s)", source.ID, ev.ID, rec.Type)

	if rec.Type == failover.RecoveryManual {
		// operator drives the ramp, nothing to supervise
		return
	}

	for {
		if !m.waitHealthy(ctx, source, rec) {
			return
		}
		if rec.Type == failover.RecoveryScheduled && !rec.NotBefore.IsZero() {
			if !m.sleep(ctx, time.Until(rec.NotBefore)) {
				return
			}
		}
		switch m.ramp(ctx, ev, source, rec, hooks) {
		case rampDone:
			ev.RecoveredAt = time.Now()
			hooks.Transition(ev, failover.EventRecovered)
			m.notifier.Notify(notifyer.RecoveryCompleted, *ev)
			if hooks.OnRecovered != nil {
				hooks.OnRecovered(ev)
			}
			log.Info().Msgf("endpoint %s recovered, event %s closed", source.ID, ev.ID)
			return
		case rampAborted:
			m.notifier.Notify(notifyer.RecoveryAborted, *ev)
			if rec.Type != failover.RecoveryHybrid {
				// stays RECOVERING for manual intervention
				log.Warn().Msgf("recovery of %s paused after rollback condition trip", source.ID)
				return
			}
			log.Warn().Msgf("recovery of %s rolled back, hybrid mode retries", source.ID)
		case rampCancelled:
			return
		}
	}
}

// waitHealthy blocks until the source delivers the required run of
// consecutive successful probes. Any failure resets the counter to zero.
func (m *Monitor) waitHealthy(ctx context.Context, source failover.ServiceEndpoint, rec failover.RecoveryStrategy) bool {
	streak := 0
	for streak < rec.ConsecutiveSuccessRequired {
		if !m.sleep(ctx, rec.HealthCheckInterval) {
			return false
		}
		if m.prober.Probe(ctx, source.Address, source.HealthPath).OK() {
			streak++
			continue
		}
		streak = 0
	}
	return true
}

type rampResult int

const (
	rampDone rampResult = iota
	rampAborted
	rampCancelled
)

func (m *Monitor) ramp(
	ctx context.Context,
	ev *failover.FailoverEvent,
	source failover.ServiceEndpoint,
	rec failover.RecoveryStrategy,
	hooks Hooks,
) rampResult {
	sourceShare := rec.InitialPercentage
	for {
		if hooks.RollbackTripped != nil && hooks.RollbackTripped() {
			err := m.traffic.SetTrafficSplit(context.WithoutCancel(ctx), ev.Source, ev.Target, 100)
			if err != nil {
				log.Error().Err(err).Msgf("failed to revert traffic to %s mid-ramp", ev.Target)
			}
			return rampAborted
		}
		if sourceShare > 100 {
			sourceShare = 100
		}
		err := m.traffic.SetTrafficSplit(ctx, ev.Source, ev.Target, 100-sourceShare)
		if err != nil {
			log.Error().Err(err).Msgf("ramp step to %d%% failed for %s", sourceShare, source.ID)
			return rampAborted
		}
		log.Debug().Msgf("recovery of %s: %d%% of traffic back on source", source.ID, sourceShare)
		if sourceShare == 100 {
			return rampDone
		}
		if !m.sleep(ctx, rec.IncrementInterval) {
			return rampCancelled
		}
		sourceShare += rec.IncrementPercentage
	}
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
