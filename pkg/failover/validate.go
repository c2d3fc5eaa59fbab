package failover

import (
	"path"
)

// Validate rejects a malformed endpoint before it reaches the registry.
func (e *ServiceEndpoint) Validate() error {
	if e.ID == "" {
		return NewError(KindValidation, string(e.ID), "endpoint id is empty")
	}
	if e.Name == "" {
		return NewError(KindValidation, string(e.ID), "endpoint name is empty")
	}
	if e.Address == "" {
		return NewError(KindValidation, string(e.ID), "endpoint address is empty")
	}
	if e.Capacity <= 0 {
		return NewError(KindValidation, string(e.ID), "endpoint capacity must be positive, got %d", e.Capacity)
	}
	if e.CurrentLoad < 0 {
		return NewError(KindValidation, string(e.ID), "endpoint load is negative")
	}
	switch e.Status {
	case StatusHealthy, StatusDegraded, StatusUnhealthy, StatusMaintenance, StatusUnknown, "":
	default:
		return NewError(KindValidation, string(e.ID), "unknown endpoint status %q", e.Status)
	}
	return nil
}

func (c *FailoverCondition) validate(entity string) error {
	if c.Metric == "" {
		return NewError(KindValidation, entity, "condition metric is empty")
	}
	switch c.Operator {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
	default:
		return NewError(KindValidation, entity, "unknown condition operator %q", c.Operator)
	}
	switch c.Signal {
	case SignalProbeFailure, SignalLatency, SignalErrorRate, SignalResourceUsage, SignalCustom:
	default:
		return NewError(KindValidation, entity, "unknown condition signal %q", c.Signal)
	}
	if c.Duration <= 0 {
		return NewError(KindValidation, entity, "condition duration must be positive")
	}
	return nil
}

func (s *FailoverStrategy) validate(entity string) error {
	switch s.Type {
	case StrategyImmediate, StrategyBlueGreen:
	case StrategyGradual, StrategyWeightedRR:
		if s.StepPercentage <= 0 || s.StepPercentage > 100 {
			return NewError(KindValidation, entity, "step percentage must be in (0,100], got %d", s.StepPercentage)
		}
		if s.StepInterval <= 0 {
			return NewError(KindValidation, entity, "step interval must be positive")
		}
	case StrategyCanary:
		if s.CanaryPercentage <= 0 || s.CanaryPercentage >= 100 {
			return NewError(KindValidation, entity, "canary percentage must be in (0,100), got %d", s.CanaryPercentage)
		}
		if s.ObservationWindow <= 0 {
			return NewError(KindValidation, entity, "canary observation window must be positive")
		}
	default:
		return NewError(KindValidation, entity, "unknown strategy type %q", s.Type)
	}
	switch s.TargetSelection {
	case SelectHighestPriority, SelectLowestLoad, SelectClosestRegion, SelectRoundRobin, SelectRandom:
	default:
		return NewError(KindValidation, entity, "unknown target selection policy %q", s.TargetSelection)
	}
	if s.DrainTimeout < 0 {
		return NewError(KindValidation, entity, "drain timeout is negative")
	}
	return nil
}

func (r *RecoveryStrategy) validate(entity string) error {
	switch r.Type {
	case RecoveryAutomatic, RecoveryManual, RecoveryScheduled, RecoveryHybrid:
	default:
		return NewError(KindValidation, entity, "unknown recovery type %q", r.Type)
	}
	if r.HealthCheckInterval <= 0 {
		return NewError(KindValidation, entity, "recovery health check interval must be positive")
	}
	if r.ConsecutiveSuccessRequired <= 0 {
		return NewError(KindValidation, entity, "consecutive success required must be positive")
	}
	if r.Type != RecoveryManual {
		if r.InitialPercentage <= 0 || r.InitialPercentage > 100 {
			return NewError(KindValidation, entity, "initial ramp percentage must be in (0,100], got %d", r.InitialPercentage)
		}
		if r.IncrementPercentage <= 0 {
			return NewError(KindValidation, entity, "ramp increment percentage must be positive")
		}
		if r.IncrementInterval <= 0 {
			return NewError(KindValidation, entity, "ramp increment interval must be positive")
		}
	}
	for i := range r.RollbackConditions {
		if err := r.RollbackConditions[i].validate(entity); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects a malformed rule before it reaches the rule registry.
// An unparseable service pattern is a configuration programming error and
// is treated as fatal by the caller at startup.
func (r *FailoverRule) Validate() error {
	entity := string(r.ID)
	if r.ID == "" {
		return NewError(KindValidation, entity, "rule id is empty")
	}
	if r.ServicePattern == "" {
		return NewError(KindValidation, entity, "rule service pattern is empty")
	}
	if _, err := path.Match(r.ServicePattern, "probe"); err != nil {
		return NewError(KindValidation, entity, "unparseable service pattern %q", r.ServicePattern)
	}
	if len(r.Conditions) == 0 {
		return NewError(KindValidation, entity, "rule has no conditions")
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].validate(entity); err != nil {
			return err
		}
	}
	if err := r.Strategy.validate(entity); err != nil {
		return err
	}
	if err := r.Recovery.validate(entity); err != nil {
		return err
	}
	if r.Cooldown < 0 {
		return NewError(KindValidation, entity, "rule cooldown is negative")
	}
	if r.MaxFailovers > 0 && r.TimeWindow <= 0 {
		return NewError(KindValidation, entity, "rule time window must be positive when max failovers is set")
	}
	return nil
}
