package failover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validRule() FailoverRule {
	return FailoverRule{
		ID:             "rule-1",
		Name:           "web error rate",
		ServicePattern: "web-*",
		Conditions: []FailoverCondition{
			{
				Metric:    MetricErrorRate,
				Operator:  OpGT,
				Threshold: 0.5,
				Duration:  time.Minute,
				Signal:    SignalErrorRate,
			},
		},
		Strategy: FailoverStrategy{
			Type:            StrategyImmediate,
			TargetSelection: SelectHighestPriority,
		},
		Recovery: RecoveryStrategy{
			Type:                       RecoveryAutomatic,
			HealthCheckInterval:        10 * time.Second,
			ConsecutiveSuccessRequired: 3,
			InitialPercentage:          10,
			IncrementPercentage:        20,
			IncrementInterval:          30 * time.Second,
		},
		Enabled:  true,
		Priority: 1,
		Cooldown: 5 * time.Minute,
	}
}

func TestEndpointValidate(t *testing.T) {
	ep := ServiceEndpoint{
		ID:       "web-1",
		Name:     "web-1",
		Address:  "10.0.0.1:8080",
		Capacity: 100,
	}
	require.NoError(t, ep.Validate())

	broken := ep
	broken.Capacity = 0
	err := broken.Validate()
	require.Error(t, err)
	require.True(t, IsKind(err, KindValidation))

	broken = ep
	broken.Address = ""
	require.Error(t, broken.Validate())

	broken = ep
	broken.Status = "flaky"
	require.Error(t, broken.Validate())
}

func TestRuleValidate(t *testing.T) {
	require.NoError(t, ptr(validRule()).Validate())

	t.Run("bad pattern", func(t *testing.T) {
		rule := validRule()
		rule.ServicePattern = "web-[" // unterminated character class
		err := rule.Validate()
		require.True(t, IsKind(err, KindValidation))
	})

	t.Run("no conditions", func(t *testing.T) {
		rule := validRule()
		rule.Conditions = nil
		require.Error(t, rule.Validate())
	})

	t.Run("unknown operator", func(t *testing.T) {
		rule := validRule()
		rule.Conditions[0].Operator = "~="
		require.Error(t, rule.Validate())
	})

	t.Run("unknown strategy", func(t *testing.T) {
		rule := validRule()
		rule.Strategy.Type = "teleport"
		require.Error(t, rule.Validate())
	})

	t.Run("gradual needs steps", func(t *testing.T) {
		rule := validRule()
		rule.Strategy.Type = StrategyGradual
		require.Error(t, rule.Validate())

		rule.Strategy.StepPercentage = 25
		rule.Strategy.StepInterval = time.Second
		require.NoError(t, rule.Validate())
	})

	t.Run("canary shape", func(t *testing.T) {
		rule := validRule()
		rule.Strategy.Type = StrategyCanary
		rule.Strategy.CanaryPercentage = 100
		require.Error(t, rule.Validate())

		rule.Strategy.CanaryPercentage = 10
		rule.Strategy.ObservationWindow = time.Minute
		require.NoError(t, rule.Validate())
	})

	t.Run("rate limit needs window", func(t *testing.T) {
		rule := validRule()
		rule.MaxFailovers = 3
		require.Error(t, rule.Validate())

		rule.TimeWindow = time.Hour
		require.NoError(t, rule.Validate())
	})

	t.Run("manual recovery skips ramp shape", func(t *testing.T) {
		rule := validRule()
		rule.Recovery = RecoveryStrategy{
			Type:                       RecoveryManual,
			HealthCheckInterval:        time.Second,
			ConsecutiveSuccessRequired: 1,
		}
		require.NoError(t, rule.Validate())
	})
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindNoEligibleTarget, "web-1", "no candidates among %d endpoints", 3)
	require.True(t, IsKind(err, KindNoEligibleTarget))
	require.False(t, IsKind(err, KindValidation))
	require.Contains(t, err.Error(), "web-1")
	require.Contains(t, err.Error(), "no candidates among 3 endpoints")
}

func TestOperatorCompare(t *testing.T) {
	require.True(t, OpGTE.Compare(2, 2))
	require.True(t, OpGT.Compare(3, 2))
	require.False(t, OpGT.Compare(2, 2))
	require.True(t, OpLT.Compare(1, 2))
	require.True(t, OpLTE.Compare(2, 2))
	require.True(t, OpEQ.Compare(2, 2))
	require.False(t, Operator("xor").Compare(1, 1))
}

func ptr[T any](v T) *T {
	return &v
}
