package rules

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// ThresholdEvaluator maintains per-rule sliding windows of matched event
// timestamps and compares the window count against each rule's operator
// and value. Cooldown suppression uses wall-clock time: it is about
// notification rate, not event time.
//
// Not safe for concurrent use; the stream consumer is the only caller.
type ThresholdEvaluator struct {
	windows     map[string][]int64   // rule_id -> matched event-time millis, append order
	lastTrigger map[string]time.Time // rule_id -> wall-clock of last emit
	nowFn       func() time.Time
}

// NewThresholdEvaluator creates an evaluator. nowFn may be nil, in which
// case time.Now is used; tests inject a fixed clock.
func NewThresholdEvaluator(nowFn func() time.Time) *ThresholdEvaluator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &ThresholdEvaluator{
		windows:     make(map[string][]int64),
		lastTrigger: make(map[string]time.Time),
		nowFn:       nowFn,
	}
}

// Evaluate runs the event against every enabled rule in the snapshot and
// returns the anomalies produced.
func (te *ThresholdEvaluator) Evaluate(event *models.Event, snapshot []models.Rule) []models.Anomaly {
	var anomalies []models.Anomaly
	for i := range snapshot {
		rule := &snapshot[i]
		if !rule.Enabled {
			continue
		}
		if a := te.evaluateRule(event, rule); a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies
}

// evaluateRule applies one rule to the event. Returns nil when the rule
// does not fire.
func (te *ThresholdEvaluator) evaluateRule(event *models.Event, rule *models.Rule) *models.Anomaly {
	if !rule.Condition.Filters.Matches(event) {
		return nil
	}

	ts := event.TimestampMs()
	window := append(te.windows[rule.RuleID], ts)

	// Front-prune everything older than the window, referenced from the
	// arriving event's timestamp. Appends are almost-monotonic in event
	// time, so the pruned prefix is the longest prefix below the cutoff.
	// An out-of-order event lands at the tail with an older timestamp;
	// entries transiently above the cutoff are accepted.
	cutoff := ts - int64(rule.WindowSeconds)*1000
	start := 0
	for start < len(window) && window[start] < cutoff {
		start++
	}
	window = window[start:]
	te.windows[rule.RuleID] = window

	count := len(window)
	if !rule.Condition.Operator.Compare(float64(count), rule.Condition.Value) {
		return nil
	}

	now := te.nowFn()
	if rule.CooldownSeconds > 0 {
		if last, ok := te.lastTrigger[rule.RuleID]; ok {
			if now.Sub(last) < time.Duration(rule.CooldownSeconds)*time.Second {
				return nil
			}
		}
	}
	te.lastTrigger[rule.RuleID] = now

	return &models.Anomaly{
		AnomalyID: uuid.New().String(),
		EventID:   event.EventID,
		RuleID:    rule.RuleID,
		Severity:  rule.Severity,
		Message: fmt.Sprintf("Threshold rule %q triggered: count(%d) %s %v",
			rule.Name, count, rule.Condition.Operator, rule.Condition.Value),
		DetectedAt: now,
	}
}
