package ruleengine

import (
	"path"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type ConditionEvaluator interface {
	EvaluateAll(id failover.EndpointID, conds []failover.FailoverCondition) (bool, []failover.ConditionSnapshot)
}

// FireDecision is what a firing rule emits. It does not execute the
// failover, the orchestrator consumes it.
type FireDecision struct {
	Rule     failover.FailoverRule
	Snapshot []failover.ConditionSnapshot
}

type ruleState struct {
	rule failover.FailoverRule
	// seq is the registration order, the deterministic tie-break for
	// rules of equal priority.
	seq uint64
}

// limitState is keyed per (rule, endpoint) pair.
type limitState struct {
	cooldownUntil time.Time
	firings       []time.Time
}

type Engine struct {
	mu     sync.Mutex
	rules  map[failover.RuleID]*ruleState
	limits map[string]*limitState
	seq    uint64
	eval   ConditionEvaluator
}

func New(eval ConditionEvaluator) *Engine {
	return &Engine{
		rules:  make(map[failover.RuleID]*ruleState),
		limits: make(map[string]*limitState),
		eval:   eval,
	}
}

func (e *Engine) AddRule(rule failover.FailoverRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.ID]; exists {
		return failover.NewError(failover.KindValidation, string(rule.ID), "rule already registered")
	}
	e.seq++
	e.rules[rule.ID] = &ruleState{rule: rule, seq: e.seq}
	log.Info().Msgf("registered rule %s pattern=%s priority=%d", rule.ID, rule.ServicePattern, rule.Priority)
	return nil
}

// UpdateRule replaces a registered rule, keeping its registration order.
func (e *Engine) UpdateRule(rule failover.FailoverRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	state, exists := e.rules[rule.ID]
	if !exists {
		return failover.NewError(failover.KindValidation, string(rule.ID), "rule is not registered")
	}
	state.rule = rule
	return nil
}

func (e *Engine) RemoveRule(id failover.RuleID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, exists := e.rules[id]
	delete(e.rules, id)
	return exists
}

func (e *Engine) Rules() []failover.FailoverRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]failover.FailoverRule, 0, len(e.rules))
	for _, st := range e.rules {
		out = append(out, st.rule)
	}
	return out
}

// Evaluate runs one detection tick for an endpoint: enabled rules
// matching the endpoint name are walked by priority desc then
// registration order, the first rule whose conditions all pass and
// whose (rule, endpoint) pair is neither cooling down nor rate-limited
// fires. At most one firing per endpoint per tick.
func (e *Engine) Evaluate(ep failover.ServiceEndpoint) (FireDecision, bool) {
	now := time.Now()
	for _, state := range e.matching(ep.Name) {
		rule := state.rule
		if !e.admit(rule, ep.ID, now) {
			continue
		}
		passed, snapshot := e.eval.EvaluateAll(ep.ID, rule.Conditions)
		if !passed {
			continue
		}
		e.markFired(rule, ep.ID, now)
		log.Info().Msgf("rule %s fired for endpoint %s", rule.ID, ep.ID)
		return FireDecision{Rule: rule, Snapshot: snapshot}, true
	}
	return FireDecision{}, false
}

func (e *Engine) matching(name string) []*ruleState {
	e.mu.Lock()
	defer e.mu.Unlock()

	matched := make([]*ruleState, 0, len(e.rules))
	for _, state := range e.rules {
		if !state.rule.Enabled {
			continue
		}
		ok, err := path.Match(state.rule.ServicePattern, name)
		if err != nil || !ok {
			continue
		}
		matched = append(matched, state)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].rule.Priority != matched[j].rule.Priority {
			return matched[i].rule.Priority > matched[j].rule.Priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}

func (e *Engine) admit(rule failover.FailoverRule, ep failover.EndpointID, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.limits[limitKey(rule.ID, ep)]
	if !ok {
		return true
	}
	if now.Before(state.cooldownUntil) {
		return false
	}
	if rule.MaxFailovers <= 0 {
		return true
	}
	inWindow := 0
	for _, at := range state.firings {
		if now.Sub(at) <= rule.TimeWindow {
			inWindow++
		}
	}
	return inWindow < rule.MaxFailovers
}

func (e *Engine) markFired(rule failover.FailoverRule, ep failover.EndpointID, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := limitKey(rule.ID, ep)
	state, ok := e.limits[key]
	if !ok {
		state = &limitState{}
		e.limits[key] = state
	}
	kept := state.firings[:0]
	for _, at := range state.firings {
		if now.Sub(at) <= rule.TimeWindow {
			kept = append(kept, at)
		}
	}
	state.firings = append(kept, now)
}

// StartCooldown arms the cooldown for a (rule, endpoint) pair, called
// when an execution completes.
func (e *Engine) StartCooldown(id failover.RuleID, ep failover.EndpointID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.rules[id]
	if !ok || state.rule.Cooldown <= 0 {
		return
	}
	key := limitKey(id, ep)
	limits, ok := e.limits[key]
	if !ok {
		limits = &limitState{}
		e.limits[key] = limits
	}
	limits.cooldownUntil = time.Now().Add(state.rule.Cooldown)
}

// ResetLimits clears cooldown and rate-limit counters for a pair, called
// once the endpoint fully recovers.
func (e *Engine) ResetLimits(id failover.RuleID, ep failover.EndpointID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.limits, limitKey(id, ep))
}

func limitKey(id failover.RuleID, ep failover.EndpointID) string {
	return string(id) + "/" + string(ep)
}
