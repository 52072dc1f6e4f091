package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/pkg/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func thresholdRule(id string, windowSeconds, cooldownSeconds int, op models.Operator, value float64) models.Rule {
	return models.Rule{
		RuleID:          id,
		Name:            "rule " + id,
		Enabled:         true,
		Severity:        models.SeverityCritical,
		WindowSeconds:   windowSeconds,
		CooldownSeconds: cooldownSeconds,
		Condition: models.RuleCondition{
			Type:     "threshold",
			Metric:   "count",
			Operator: op,
			Value:    value,
		},
	}
}

func eventAt(ts time.Time, eventType, source string) *models.Event {
	return &models.Event{
		EventID:   "e-" + ts.Format("150405.000"),
		EventType: eventType,
		Source:    source,
		Timestamp: ts,
	}
}

func TestThresholdEvaluator_FiresAtThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te := NewThresholdEvaluator(fixedClock(base))
	snapshot := []models.Rule{thresholdRule("r1", 60, 0, models.OpGT, 2)}

	// Three events inside the window: counts 1, 2, 3. Only the third
	// satisfies count > 2.
	for i := 0; i < 2; i++ {
		got := te.Evaluate(eventAt(base.Add(time.Duration(i)*time.Second), "user.login", "auth"), snapshot)
		assert.Empty(t, got, "event %d must not fire", i)
	}

	got := te.Evaluate(eventAt(base.Add(2*time.Second), "user.login", "auth"), snapshot)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].RuleID)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
	assert.Contains(t, got[0].Message, "count(3) > 2")
	assert.NotEmpty(t, got[0].AnomalyID)
}

func TestThresholdEvaluator_WindowExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te := NewThresholdEvaluator(fixedClock(base))
	snapshot := []models.Rule{thresholdRule("r1", 10, 0, models.OpGT, 2)}

	te.Evaluate(eventAt(base, "a", "s"), snapshot)
	te.Evaluate(eventAt(base.Add(1*time.Second), "a", "s"), snapshot)

	// 15s later the first two have aged out; window count is 1.
	got := te.Evaluate(eventAt(base.Add(15*time.Second), "a", "s"), snapshot)
	assert.Empty(t, got)

	// Two quick follow-ups rebuild the window to 3.
	te.Evaluate(eventAt(base.Add(16*time.Second), "a", "s"), snapshot)
	got = te.Evaluate(eventAt(base.Add(17*time.Second), "a", "s"), snapshot)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "count(3)")
}

func TestThresholdEvaluator_Cooldown(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	te := NewThresholdEvaluator(func() time.Time { return now })
	snapshot := []models.Rule{thresholdRule("r1", 60, 30, models.OpGTE, 1)}

	// Every event satisfies count >= 1; cooldown limits emissions.
	got := te.Evaluate(eventAt(base, "a", "s"), snapshot)
	require.Len(t, got, 1)

	now = base.Add(10 * time.Second)
	got = te.Evaluate(eventAt(base.Add(10*time.Second), "a", "s"), snapshot)
	assert.Empty(t, got, "suppressed inside cooldown")

	now = base.Add(31 * time.Second)
	got = te.Evaluate(eventAt(base.Add(31*time.Second), "a", "s"), snapshot)
	require.Len(t, got, 1, "fires again after cooldown")
}

func TestThresholdEvaluator_Filters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te := NewThresholdEvaluator(fixedClock(base))

	rule := thresholdRule("r1", 60, 0, models.OpGTE, 1)
	rule.Condition.Filters = models.RuleFilters{EventType: "user.login"}
	snapshot := []models.Rule{rule}

	assert.Empty(t, te.Evaluate(eventAt(base, "user.logout", "auth"), snapshot))
	assert.Len(t, te.Evaluate(eventAt(base, "user.login", "auth"), snapshot), 1)
}

func TestThresholdEvaluator_SkipsDisabledRules(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te := NewThresholdEvaluator(fixedClock(base))

	rule := thresholdRule("r1", 60, 0, models.OpGTE, 1)
	rule.Enabled = false
	assert.Empty(t, te.Evaluate(eventAt(base, "a", "s"), []models.Rule{rule}))
}

func TestThresholdEvaluator_OutOfOrderEvent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te := NewThresholdEvaluator(fixedClock(base))
	snapshot := []models.Rule{thresholdRule("r1", 60, 0, models.OpGT, 2)}

	te.Evaluate(eventAt(base, "a", "s"), snapshot)
	te.Evaluate(eventAt(base.Add(5*time.Second), "a", "s"), snapshot)

	// An older event arrives late but still inside the window; it counts.
	got := te.Evaluate(eventAt(base.Add(2*time.Second), "a", "s"), snapshot)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "count(3)")
}

func TestThresholdEvaluator_IndependentRuleWindows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te := NewThresholdEvaluator(fixedClock(base))

	narrow := thresholdRule("narrow", 60, 0, models.OpGTE, 2)
	narrow.Condition.Filters = models.RuleFilters{Source: "auth"}
	broad := thresholdRule("broad", 60, 0, models.OpGTE, 3)
	snapshot := []models.Rule{narrow, broad}

	te.Evaluate(eventAt(base, "a", "billing"), snapshot)
	te.Evaluate(eventAt(base.Add(time.Second), "a", "auth"), snapshot)

	// Third event: narrow sees its 2nd match, broad its 3rd. Both fire.
	got := te.Evaluate(eventAt(base.Add(2*time.Second), "a", "auth"), snapshot)
	require.Len(t, got, 2)
	ids := []string{got[0].RuleID, got[1].RuleID}
	assert.ElementsMatch(t, []string{"narrow", "broad"}, ids)
}
