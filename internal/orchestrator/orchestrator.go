package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/evaluator"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/executor"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/metricstore"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/prober"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/recovery"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/ruleengine"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/selector"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/traffic"
	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type Notifier interface {
	Notify(kind notifyer.Kind, event failover.FailoverEvent)
}

type Config struct {
	HealthCheckInterval    time.Duration
	DetectionInterval      time.Duration
	MetricsRetention       time.Duration
	ProbeConcurrency       int
	MaxConcurrentFailovers int
	// MinSamples is the least number of samples a condition window must
	// contain before it may pass.
	MinSamples             int
	SuccessBeforePassing   uint8
	FailuresBeforeCritical uint8
	ShutdownGrace          time.Duration
	SampleRingCapacity     int
}

func (c Config) withDefaults() Config {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 10 * time.Second
	}
	if c.DetectionInterval <= 0 {
		c.DetectionInterval = 5 * time.Second
	}
	if c.MetricsRetention <= 0 {
		c.MetricsRetention = time.Hour
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = 16
	}
	if c.MaxConcurrentFailovers <= 0 {
		c.MaxConcurrentFailovers = 4
	}
	if c.SuccessBeforePassing == 0 {
		c.SuccessBeforePassing = 2
	}
	if c.FailuresBeforeCritical == 0 {
		c.FailuresBeforeCritical = 3
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

type probeTask struct {
	id      failover.EndpointID
	address string
	path    string
}

// Manager owns every shared registry of the failover core and drives
// the three periodic loops. All mutation goes through its serialized
// entry points, no component reaches into another's state.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	endpoints map[failover.EndpointID]*failover.ServiceEndpoint
	trackers  map[failover.EndpointID]*healthTracker
	// active holds the single live event per source endpoint, from
	// TRIGGERED until a terminal status.
	active        map[failover.EndpointID]*failover.FailoverEvent
	activeTargets map[failover.EndpointID]struct{}
	recoveryCfg   map[failover.EndpointID]failover.RecoveryStrategy
	recovering    map[failover.EndpointID]bool
	inFlight      int
	rejected      int64

	store    *metricstore.Store
	engine   *ruleengine.Engine
	eval     *evaluator.Evaluator
	sel      *selector.Selector
	exec     *executor.Executor
	rcv      *recovery.Monitor
	traffic  traffic.Controller
	prb      prober.Prober
	notifier Notifier
	metrics  metrics.Metrics

	probeTasks chan probeTask
	runCtx     context.Context
	cancel     context.CancelFunc
	loopWg     sync.WaitGroup
	execWg     sync.WaitGroup
}

func New(
	cfg Config,
	prb prober.Prober,
	trafficCtl traffic.Controller,
	notifier Notifier,
	mtr metrics.Metrics,
) *Manager {
	cfg = cfg.withDefaults()
	if mtr == nil {
		mtr = metrics.Noop{}
	}
	store := metricstore.New(cfg.SampleRingCapacity)
	eval := evaluator.New(store, cfg.MinSamples)

	m := &Manager{
		cfg:           cfg,
		endpoints:     make(map[failover.EndpointID]*failover.ServiceEndpoint),
		trackers:      make(map[failover.EndpointID]*healthTracker),
		active:        make(map[failover.EndpointID]*failover.FailoverEvent),
		activeTargets: make(map[failover.EndpointID]struct{}),
		recoveryCfg:   make(map[failover.EndpointID]failover.RecoveryStrategy),
		recovering:    make(map[failover.EndpointID]bool),
		store:         store,
		eval:          eval,
		engine:        ruleengine.New(eval),
		sel:           selector.New(),
		traffic:       trafficCtl,
		prb:           prb,
		notifier:      notifier,
		metrics:       mtr,
		probeTasks:    make(chan probeTask, 4*cfg.ProbeConcurrency),
	}
	m.exec = executor.New(trafficCtl, prb, notifier, m, m.transition)
	m.rcv = recovery.New(prb, trafficCtl, notifier)
	return m
}

// Start spawns the probing, detection and cleanup loops.
func (m *Manager) Start(ctx context.Context) {
	m.runCtx, m.cancel = context.WithCancel(ctx)

	for i := 0; i < m.cfg.ProbeConcurrency; i++ {
		m.loopWg.Add(1)
		go m.probeWorker(m.runCtx)
	}
	m.loopWg.Add(3)
	go m.probeLoop(m.runCtx)
	go m.detectionLoop(m.runCtx)
	go m.cleanupLoop(m.runCtx)
	log.Info().Msgf("failover manager started: probe=%s detect=%s retention=%s",
		m.cfg.HealthCheckInterval, m.cfg.DetectionInterval, m.cfg.MetricsRetention)
}

// Shutdown stops the loops, then lets in-progress executions reach a
// terminal state within the grace period. Executions run on the
// manager's context, so cancellation drives them to FAILED promptly.
func (m *Manager) Shutdown() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.loopWg.Wait()

	done := make(chan struct{})
	go func() {
		m.execWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("failover manager stopped cleanly")
	case <-time.After(m.cfg.ShutdownGrace):
		log.Warn().Msg("shutdown grace period expired, abandoning in-progress work")
	}
}

// ---- control surface ----

func (m *Manager) RegisterEndpoint(ep failover.ServiceEndpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	if ep.Status == "" {
		ep.Status = failover.StatusUnknown
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.endpoints[ep.ID]; exists {
		return failover.NewError(failover.KindValidation, string(ep.ID), "endpoint already registered")
	}
	m.endpoints[ep.ID] = &ep
	m.trackers[ep.ID] = newHealthTracker(m.cfg.SuccessBeforePassing, m.cfg.FailuresBeforeCritical)
	log.Info().Msgf("registered endpoint %s (%s) region=%s priority=%d", ep.ID, ep.Name, ep.Region, ep.Priority)
	return nil
}

func (m *Manager) RemoveEndpoint(id failover.EndpointID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.endpoints[id]; !exists {
		return failover.NewError(failover.KindValidation, string(id), "endpoint is not registered")
	}
	if _, busy := m.active[id]; busy {
		return failover.NewError(failover.KindValidation, string(id), "endpoint has a failover in flight")
	}
	delete(m.endpoints, id)
	delete(m.trackers, id)
	return nil
}

func (m *Manager) AddFailoverRule(rule failover.FailoverRule) error {
	return m.engine.AddRule(rule)
}

func (m *Manager) UpdateFailoverRule(rule failover.FailoverRule) error {
	return m.engine.UpdateRule(rule)
}

func (m *Manager) RemoveFailoverRule(id failover.RuleID) bool {
	return m.engine.RemoveRule(id)
}

// SetMaintenance is the only way endpoint status is set directly. While
// in maintenance an endpoint is neither probed nor selectable.
func (m *Manager) SetMaintenance(id failover.EndpointID, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ep, exists := m.endpoints[id]
	if !exists {
		return failover.NewError(failover.KindValidation, string(id), "endpoint is not registered")
	}
	if on {
		ep.Status = failover.StatusMaintenance
	} else {
		ep.Status = failover.StatusUnknown
		m.trackers[id] = newHealthTracker(m.cfg.SuccessBeforePassing, m.cfg.FailuresBeforeCritical)
	}
	log.Info().Msgf("endpoint %s maintenance=%t", id, on)
	return nil
}

// manual trigger defaults, the executor state machine still applies
var (
	manualStrategy = failover.FailoverStrategy{
		Type:              failover.StrategyImmediate,
		TargetSelection:   failover.SelectHighestPriority,
		ValidateTarget:    true,
		RollbackOnFailure: true,
	}
	manualRecovery = failover.RecoveryStrategy{
		Type:                       failover.RecoveryAutomatic,
		HealthCheckInterval:        10 * time.Second,
		ConsecutiveSuccessRequired: 3,
		InitialPercentage:          10,
		IncrementPercentage:        30,
		IncrementInterval:          30 * time.Second,
	}
)

// TriggerFailover is the manual override: it bypasses rule matching but
// runs the full executor state machine with default strategy settings.
func (m *Manager) TriggerFailover(sourceID, targetID failover.EndpointID, reason string) (*failover.FailoverEvent, error) {
	m.mu.Lock()
	src, exists := m.endpoints[sourceID]
	if !exists {
		m.mu.Unlock()
		return nil, failover.NewError(failover.KindValidation, string(sourceID), "endpoint is not registered")
	}
	source := *src
	m.mu.Unlock()

	if reason == "" {
		reason = "manual trigger"
	}
	return m.launch(source, nil, nil, targetID, reason)
}

type SystemHealth struct {
	Status             string
	Endpoints          map[failover.EndpointID]EndpointHealth
	Regions            map[string]RegionHealth
	ActiveFailovers    int
	InFlightExecutions int
	RejectedTriggers   int64
}

type EndpointHealth struct {
	Name        string
	Region      string
	Status      failover.EndpointStatus
	LastProbe   time.Time
	ActiveEvent string
}

type RegionHealth struct {
	Total   int
	Healthy int
}

// GetSystemHealth always succeeds and reports degraded subsystems
// instead of raising.
func (m *Manager) GetSystemHealth() SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := SystemHealth{
		Status:             "ok",
		Endpoints:          make(map[failover.EndpointID]EndpointHealth, len(m.endpoints)),
		Regions:            make(map[string]RegionHealth),
		ActiveFailovers:    len(m.active),
		InFlightExecutions: m.inFlight,
		RejectedTriggers:   m.rejected,
	}
	for id, ep := range m.endpoints {
		eh := EndpointHealth{
			Name:      ep.Name,
			Region:    ep.Region,
			Status:    ep.Status,
			LastProbe: ep.LastProbe,
		}
		if ev, ok := m.active[id]; ok {
			eh.ActiveEvent = ev.ID
		}
		health.Endpoints[id] = eh

		region := health.Regions[ep.Region]
		region.Total++
		if ep.Status == failover.StatusHealthy {
			region.Healthy++
		}
		health.Regions[ep.Region] = region
	}
	for _, ep := range m.endpoints {
		if ep.Status == failover.StatusUnhealthy || ep.Status == failover.StatusDegraded {
			health.Status = "degraded"
			break
		}
	}
	if len(m.active) > 0 {
		health.Status = "degraded"
	}
	return health
}

type EndpointMetrics struct {
	AvgLatencyMs        float64
	MaxLatencyMs        float64
	ErrorRate           float64
	Samples             int
	ConsecutiveFailures int
	Events              []failover.FailoverEvent
}

func (m *Manager) GetEndpointMetrics(id failover.EndpointID, period time.Duration) (EndpointMetrics, error) {
	m.mu.Lock()
	_, exists := m.endpoints[id]
	var activeCopy *failover.FailoverEvent
	if ev, ok := m.active[id]; ok {
		// the executor owns duration/reason/affected until the event
		// retires, copy only the fields guarded by m.mu
		activeCopy = &failover.FailoverEvent{
			ID:        ev.ID,
			CreatedAt: ev.CreatedAt,
			RuleID:    ev.RuleID,
			RuleName:  ev.RuleName,
			Source:    ev.Source,
			Target:    ev.Target,
			Snapshot:  ev.Snapshot,
			Status:    ev.Status,
		}
	}
	m.mu.Unlock()
	if !exists {
		return EndpointMetrics{}, failover.NewError(failover.KindValidation, string(id), "endpoint is not registered")
	}

	out := EndpointMetrics{}
	out.AvgLatencyMs, out.Samples = m.store.Aggregate(id, failover.MetricLatency, period, metricstore.AggAvg)
	out.MaxLatencyMs, _ = m.store.Aggregate(id, failover.MetricLatency, period, metricstore.AggMax)
	out.ErrorRate, _ = m.store.Aggregate(id, failover.MetricErrorRate, period, metricstore.AggAvg)
	streak, _ := m.store.Aggregate(id, failover.MetricConsecutiveFailures, period, metricstore.AggMax)
	out.ConsecutiveFailures = int(streak)
	out.Events = m.store.Events(id)
	if activeCopy != nil {
		out.Events = append(out.Events, *activeCopy)
	}
	return out, nil
}

// ResumeRecovery restarts supervision of an event parked in RECOVERING,
// the operator lever for manual recovery and tripped rollbacks.
func (m *Manager) ResumeRecovery(sourceID failover.EndpointID) error {
	m.mu.Lock()
	ev, ok := m.active[sourceID]
	if !ok || ev.Status != failover.EventRecovering {
		m.mu.Unlock()
		return failover.NewError(failover.KindValidation, string(sourceID), "no recovering failover for endpoint")
	}
	if m.recovering[sourceID] {
		m.mu.Unlock()
		return failover.NewError(failover.KindValidation, string(sourceID), "recovery is already running")
	}
	ep, exists := m.endpoints[sourceID]
	if !exists {
		m.mu.Unlock()
		return failover.NewError(failover.KindValidation, string(sourceID), "endpoint is not registered")
	}
	source := *ep
	rec := m.recoveryCfg[sourceID]
	m.recovering[sourceID] = true
	m.mu.Unlock()

	// operator resumption always ramps, so supervise as automatic
	if rec.Type == failover.RecoveryManual {
		rec.Type = failover.RecoveryAutomatic
		if rec.InitialPercentage <= 0 {
			rec.InitialPercentage = manualRecovery.InitialPercentage
			rec.IncrementPercentage = manualRecovery.IncrementPercentage
			rec.IncrementInterval = manualRecovery.IncrementInterval
		}
	}
	m.superviseRecovery(ev, source, rec)
	return nil
}

// ---- loops ----

func (m *Manager) probeLoop(ctx context.Context) {
	defer m.loopWg.Done()
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, task := range m.probeTargets() {
			select {
			case m.probeTasks <- task:
			case <-ctx.Done():
				return
			default:
				log.Warn().Msgf("probe workers are saturated, skipped probe of %s", task.id)
				m.metrics.Increment("probe.skipped")
			}
		}
	}
}

func (m *Manager) probeTargets() []probeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]probeTask, 0, len(m.endpoints))
	for id, ep := range m.endpoints {
		if ep.Status == failover.StatusMaintenance {
			continue
		}
		tasks = append(tasks, probeTask{id: id, address: ep.Address, path: ep.HealthPath})
	}
	return tasks
}

func (m *Manager) probeWorker(ctx context.Context) {
	defer m.loopWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-m.probeTasks:
			started := time.Now()
			result := m.prb.Probe(ctx, task.address, task.path)
			m.metrics.Duration("probe.duration", time.Since(started))
			m.applyProbe(task.id, result)
		}
	}
}

// applyProbe is the only place endpoint status changes outside of the
// maintenance override.
func (m *Manager) applyProbe(id failover.EndpointID, result prober.Result) {
	m.store.Record(id, metricstore.Sample{
		Success: result.OK(),
		Latency: result.Latency,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	ep, exists := m.endpoints[id]
	if !exists || ep.Status == failover.StatusMaintenance {
		return
	}
	tracker := m.trackers[id]
	prev := ep.Status
	ep.Status = tracker.apply(result.OK())
	ep.LastProbe = time.Now()
	if prev != ep.Status {
		log.Info().Msgf("endpoint %s status %s -> %s (probe %s)", id, prev, ep.Status, result.Outcome)
		m.metrics.Increment("endpoint.status." + string(ep.Status))
	}
}

func (m *Manager) detectionLoop(ctx context.Context) {
	defer m.loopWg.Done()
	ticker := time.NewTicker(m.cfg.DetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.detect()
	}
}

func (m *Manager) detect() {
	m.mu.Lock()
	candidates := make([]failover.ServiceEndpoint, 0, len(m.endpoints))
	for id, ep := range m.endpoints {
		if ep.Status == failover.StatusMaintenance {
			continue
		}
		if _, busy := m.active[id]; busy {
			continue
		}
		candidates = append(candidates, *ep)
	}
	m.mu.Unlock()

	for _, ep := range candidates {
		decision, fired := m.engine.Evaluate(ep)
		if !fired {
			continue
		}
		m.metrics.Increment("rule.fired")
		if _, err := m.launch(ep, &decision.Rule, decision.Snapshot, "", ""); err != nil {
			log.Warn().Err(err).Msgf("failover for %s not started", ep.ID)
		}
	}
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.loopWg.Done()
	interval := m.cfg.MetricsRetention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.store.Cleanup(m.cfg.MetricsRetention)
		}
	}
}

// ---- failover lifecycle ----

// launch admits and starts one failover: per-source mutual exclusion,
// the global concurrency bound and target selection all happen here
// under one critical section.
func (m *Manager) launch(
	source failover.ServiceEndpoint,
	rule *failover.FailoverRule,
	snapshot []failover.ConditionSnapshot,
	explicitTarget failover.EndpointID,
	reason string,
) (*failover.FailoverEvent, error) {
	strategy := manualStrategy
	recoveryStrategy := manualRecovery
	if rule != nil {
		strategy = rule.Strategy
		recoveryStrategy = rule.Recovery
	}

	m.mu.Lock()
	if _, busy := m.active[source.ID]; busy {
		m.rejected++
		m.mu.Unlock()
		return nil, &failover.Error{
			Kind:       failover.KindConcurrencyLimit,
			Entity:     string(source.ID),
			Reason:     "a failover is already in progress for this endpoint",
			RetryAfter: m.cfg.DetectionInterval,
		}
	}
	if m.inFlight >= m.cfg.MaxConcurrentFailovers {
		m.rejected++
		m.mu.Unlock()
		m.metrics.Increment("failover.rejected")
		return nil, &failover.Error{
			Kind:       failover.KindConcurrencyLimit,
			Entity:     string(source.ID),
			Reason:     "too many simultaneous failovers",
			RetryAfter: m.cfg.DetectionInterval,
		}
	}

	target, err := m.pickTargetLocked(strategy.TargetSelection, source, explicitTarget)
	if err != nil {
		m.mu.Unlock()
		m.recordAborted(source, rule, snapshot, reason, err)
		return nil, err
	}

	ev := &failover.FailoverEvent{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Source:    source.ID,
		Target:    target.ID,
		Snapshot:  snapshot,
		Status:    failover.EventTriggered,
		Reason:    reason,
	}
	if rule != nil {
		ev.RuleID = rule.ID
		ev.RuleName = rule.Name
	}
	m.active[source.ID] = ev
	m.activeTargets[target.ID] = struct{}{}
	m.recoveryCfg[source.ID] = recoveryStrategy
	m.inFlight++
	m.metrics.Gauge("failover.in_flight", m.inFlight)
	m.mu.Unlock()

	if rule != nil {
		m.notifier.Notify(notifyer.RuleFired, *ev)
	}

	req := executor.Request{
		Event:    ev,
		Source:   source,
		Target:   target,
		Strategy: strategy,
	}
	if rule != nil {
		conds := rule.Conditions
		req.ConditionsFiring = func() bool {
			passed, _ := m.eval.EvaluateAll(source.ID, conds)
			return passed
		}
	}

	ruleID := failover.RuleID("")
	if rule != nil {
		ruleID = rule.ID
	}
	m.execWg.Add(1)
	go func() {
		defer m.execWg.Done()
		if execErr := m.exec.Execute(m.execCtx(), req); execErr != nil {
			return
		}
		if ruleID != "" {
			m.engine.StartCooldown(ruleID, source.ID)
		}
		m.mu.Lock()
		m.recovering[source.ID] = true
		m.mu.Unlock()
		m.superviseRecovery(ev, source, recoveryStrategy)
	}()
	return ev, nil
}

// pickTargetLocked expects m.mu held.
func (m *Manager) pickTargetLocked(
	policy failover.SelectionPolicy,
	source failover.ServiceEndpoint,
	explicit failover.EndpointID,
) (failover.ServiceEndpoint, error) {
	if explicit != "" {
		if explicit == source.ID {
			return failover.ServiceEndpoint{}, failover.NewError(
				failover.KindValidation, string(explicit), "target must differ from source")
		}
		target, exists := m.endpoints[explicit]
		if !exists {
			return failover.ServiceEndpoint{}, failover.NewError(
				failover.KindValidation, string(explicit), "target endpoint is not registered")
		}
		return *target, nil
	}
	pool := make([]failover.ServiceEndpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		pool = append(pool, *ep)
	}
	excluded := make(map[failover.EndpointID]struct{}, len(m.activeTargets)+len(m.active))
	for id := range m.activeTargets {
		excluded[id] = struct{}{}
	}
	for id := range m.active {
		excluded[id] = struct{}{}
	}
	return m.sel.Select(policy, source, pool, excluded)
}

// recordAborted materializes a failover that could not start (no
// eligible target) as a FAILED event, not a crash.
func (m *Manager) recordAborted(
	source failover.ServiceEndpoint,
	rule *failover.FailoverRule,
	snapshot []failover.ConditionSnapshot,
	reason string,
	cause error,
) {
	if !failover.IsKind(cause, failover.KindNoEligibleTarget) {
		return
	}
	ev := failover.FailoverEvent{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Source:    source.ID,
		Snapshot:  snapshot,
		Status:    failover.EventFailed,
		Reason:    cause.Error(),
	}
	if rule != nil {
		ev.RuleID = rule.ID
		ev.RuleName = rule.Name
	}
	if reason != "" {
		ev.Reason = reason + ": " + cause.Error()
	}
	m.store.RecordEvent(ev)
	m.metrics.Increment("failover.no_target")
	m.notifier.Notify(notifyer.FailoverFailed, ev)
}

func (m *Manager) superviseRecovery(
	ev *failover.FailoverEvent,
	source failover.ServiceEndpoint,
	rec failover.RecoveryStrategy,
) {
	hooks := recovery.Hooks{
		Transition: m.transition,
		RollbackTripped: func() bool {
			if len(rec.RollbackConditions) == 0 {
				return false
			}
			tripped, _ := m.eval.EvaluateAll(source.ID, rec.RollbackConditions)
			return tripped
		},
		OnRecovered: func(ev *failover.FailoverEvent) {
			if ev.RuleID != "" {
				m.engine.ResetLimits(ev.RuleID, ev.Source)
			}
		},
	}
	m.execWg.Add(1)
	go func() {
		defer m.execWg.Done()
		m.rcv.Run(m.execCtx(), ev, source, rec, hooks)
		m.mu.Lock()
		delete(m.recovering, source.ID)
		m.mu.Unlock()
	}()
}

// execCtx lets manual triggers work before Start in tests and tooling.
func (m *Manager) execCtx() context.Context {
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

// transition serializes every event status change and retires terminal
// events into the metric store.
func (m *Manager) transition(ev *failover.FailoverEvent, status failover.EventStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.Status = status
	m.metrics.Increment("event." + string(status))

	switch status {
	case failover.EventCompleted, failover.EventFailed:
		m.inFlight--
		m.metrics.Gauge("failover.in_flight", m.inFlight)
	}
	if ev.Terminal() {
		m.store.RecordEvent(*ev)
		delete(m.active, ev.Source)
		delete(m.recoveryCfg, ev.Source)
		if ev.Target != "" {
			delete(m.activeTargets, ev.Target)
		}
	}
}

// MoveLoad shifts whatever load remains on from over to to after a
// drain, returning the number of moved connections.
func (m *Manager) MoveLoad(from, to failover.EndpointID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.endpoints[from]
	if !ok {
		return 0
	}
	moved := src.CurrentLoad
	src.CurrentLoad = 0
	if dst, ok := m.endpoints[to]; ok {
		dst.CurrentLoad += moved
	}
	return moved
}
