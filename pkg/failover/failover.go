package failover

import (
	"time"
)

type EndpointID string

type EndpointStatus string

const (
	StatusHealthy     EndpointStatus = "healthy"
	StatusDegraded    EndpointStatus = "degraded"
	StatusUnhealthy   EndpointStatus = "unhealthy"
	StatusMaintenance EndpointStatus = "maintenance"
	StatusUnknown     EndpointStatus = "unknown"
)

type ServiceEndpoint struct {
	ID         EndpointID `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	HealthPath string     `json:"health_path"`
	Region     string     `json:"region"`
	// Priority is static, lower value means more preferred.
	Priority    int            `json:"priority"`
	Capacity    int64          `json:"capacity"`
	CurrentLoad int64          `json:"current_load"`
	Status      EndpointStatus `json:"status"`
	LastProbe   time.Time      `json:"last_probe"`
}

type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
)

type Signal string

const (
	SignalProbeFailure  Signal = "probe_failure"
	SignalLatency       Signal = "latency"
	SignalErrorRate     Signal = "error_rate"
	SignalResourceUsage Signal = "resource_usage"
	SignalCustom        Signal = "custom"
)

// Well-known metric names the metric store can derive from probe samples.
const (
	MetricLatency             = "latency"
	MetricErrorRate           = "error_rate"
	MetricConsecutiveFailures = "consecutive_failures"
)

type FailoverCondition struct {
	Metric    string   `json:"metric"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
	// Duration is the trailing window the metric is aggregated over.
	Duration time.Duration `json:"duration"`
	Signal   Signal        `json:"signal"`
}

type StrategyType string

const (
	StrategyImmediate  StrategyType = "immediate"
	StrategyGradual    StrategyType = "gradual"
	StrategyBlueGreen  StrategyType = "blue_green"
	StrategyCanary     StrategyType = "canary"
	StrategyWeightedRR StrategyType = "weighted_round_robin"
)

type SelectionPolicy string

const (
	SelectHighestPriority SelectionPolicy = "highest_priority"
	SelectLowestLoad      SelectionPolicy = "lowest_load"
	SelectClosestRegion   SelectionPolicy = "closest_region"
	SelectRoundRobin      SelectionPolicy = "round_robin"
	SelectRandom          SelectionPolicy = "random"
)

type FailoverStrategy struct {
	Type            StrategyType    `json:"type"`
	TargetSelection SelectionPolicy `json:"target_selection"`
	// StepPercentage/StepInterval shape gradual and weighted_round_robin shifts.
	StepPercentage int           `json:"step_percentage,omitempty"`
	StepInterval   time.Duration `json:"step_interval,omitempty"`
	// CanaryPercentage is held for ObservationWindow before full cutover.
	CanaryPercentage  int           `json:"canary_percentage,omitempty"`
	ObservationWindow time.Duration `json:"observation_window,omitempty"`
	DrainTimeout      time.Duration `json:"drain_timeout,omitempty"`
	ValidateTarget    bool          `json:"validate_target,omitempty"`
	RollbackOnFailure bool          `json:"rollback_on_failure,omitempty"`
}

type RecoveryType string

const (
	RecoveryAutomatic RecoveryType = "automatic"
	RecoveryManual    RecoveryType = "manual"
	RecoveryScheduled RecoveryType = "scheduled"
	RecoveryHybrid    RecoveryType = "hybrid"
)

type RecoveryStrategy struct {
	Type                       RecoveryType  `json:"type"`
	HealthCheckInterval        time.Duration `json:"health_check_interval"`
	ConsecutiveSuccessRequired int           `json:"consecutive_success_required"`
	InitialPercentage          int           `json:"initial_percentage,omitempty"`
	IncrementPercentage        int           `json:"increment_percentage,omitempty"`
	IncrementInterval          time.Duration `json:"increment_interval,omitempty"`
	// NotBefore delays the ramp start for scheduled recovery.
	NotBefore          time.Time           `json:"not_before,omitempty"`
	RollbackConditions []FailoverCondition `json:"rollback_conditions,omitempty"`
}

type RuleID string

type FailoverRule struct {
	ID   RuleID `json:"id"`
	Name string `json:"name"`
	// ServicePattern is a glob matched against endpoint names, e.g. "web-*".
	ServicePattern string `json:"service_pattern"`
	// Conditions are ANDed, all must hold for the rule to fire.
	Conditions []FailoverCondition `json:"conditions"`
	Strategy   FailoverStrategy    `json:"strategy"`
	Recovery   RecoveryStrategy    `json:"recovery"`
	Enabled    bool                `json:"enabled"`
	// Priority breaks ties between matching rules, higher fires first.
	Priority int           `json:"priority"`
	Cooldown time.Duration `json:"cooldown"`
	// MaxFailovers bounds firings per (rule, endpoint) within TimeWindow.
	MaxFailovers int           `json:"max_failovers,omitempty"`
	TimeWindow   time.Duration `json:"time_window,omitempty"`
}

type EventStatus string

const (
	EventTriggered  EventStatus = "TRIGGERED"
	EventInProgress EventStatus = "IN_PROGRESS"
	EventCompleted  EventStatus = "COMPLETED"
	EventFailed     EventStatus = "FAILED"
	EventRecovering EventStatus = "RECOVERING"
	EventRecovered  EventStatus = "RECOVERED"
)

// ConditionSnapshot is the audit record of one condition evaluation,
// embedded verbatim into the resulting event.
type ConditionSnapshot struct {
	Metric    string   `json:"metric"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
	Actual    float64  `json:"actual"`
	Samples   int      `json:"samples"`
	Passed    bool     `json:"passed"`
}

type FailoverEvent struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	RuleID    RuleID              `json:"rule_id,omitempty"`
	RuleName  string              `json:"rule_name,omitempty"`
	Source    EndpointID          `json:"source"`
	Target    EndpointID          `json:"target,omitempty"`
	Snapshot  []ConditionSnapshot `json:"snapshot,omitempty"`
	Status    EventStatus         `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	// Duration is filled once the event reaches a terminal execution state.
	Duration            time.Duration `json:"duration,omitempty"`
	AffectedConnections int64         `json:"affected_connections,omitempty"`
	RecoveredAt         time.Time     `json:"recovered_at,omitzero"`
}

// Terminal reports whether the event can never change status again.
func (e *FailoverEvent) Terminal() bool {
	return e.Status == EventFailed || e.Status == EventRecovered
}

// Compare applies op to actual against threshold.
func (op Operator) Compare(actual, threshold float64) bool {
	switch op {
	case OpGT:
		return actual > threshold
	case OpGTE:
		return actual >= threshold
	case OpLT:
		return actual < threshold
	case OpLTE:
		return actual <= threshold
	case OpEQ:
		return actual == threshold
	}
	return false
}
