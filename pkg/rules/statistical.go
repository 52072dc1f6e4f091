package rules

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// StatRuleIDPrefix distinguishes statistical anomalies from threshold-rule
// anomalies in the anomalies table; there is no schema-level link between
// profiles and the rules table.
const StatRuleIDPrefix = "stat:"

// StatOptions tunes the statistical evaluator.
type StatOptions struct {
	// Severity assigned to emitted anomalies. Defaults to warning.
	Severity models.Severity
}

// profileState is the mutable per-profile detection state.
type profileState struct {
	buckets     map[int64]int // bucket-start millis -> count
	lastTrigger time.Time
	lastBucket  int64 // bucket start of the last emission
	triggered   bool
}

// StatEvaluator detects volume spikes by comparing the current event-time
// bucket against the mean and population stddev of a recent baseline.
//
// Bucket keys derive from event time, never wall-clock, so they are
// deterministic regardless of worker latency. Not safe for concurrent use;
// the stream consumer is the only caller.
type StatEvaluator struct {
	profiles []models.StatProfile
	state    map[string]*profileState
	severity models.Severity
	nowFn    func() time.Time
}

// NewStatEvaluator creates an evaluator over a fixed profile set.
func NewStatEvaluator(profiles []models.StatProfile, opts StatOptions, nowFn func() time.Time) *StatEvaluator {
	if nowFn == nil {
		nowFn = time.Now
	}
	severity := opts.Severity
	if severity == "" {
		severity = models.SeverityWarning
	}
	state := make(map[string]*profileState, len(profiles))
	for _, p := range profiles {
		state[p.ID] = &profileState{buckets: make(map[int64]int)}
	}
	return &StatEvaluator{
		profiles: profiles,
		state:    state,
		severity: severity,
		nowFn:    nowFn,
	}
}

// EvaluateEvent feeds one event into every matching profile and returns
// any anomalies produced.
func (se *StatEvaluator) EvaluateEvent(event *models.Event) []models.Anomaly {
	var anomalies []models.Anomaly
	for i := range se.profiles {
		profile := &se.profiles[i]
		if !profile.Filters.Matches(event) {
			continue
		}
		if a := se.evaluateProfile(event, profile); a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies
}

func (se *StatEvaluator) evaluateProfile(event *models.Event, profile *models.StatProfile) *models.Anomaly {
	st := se.state[profile.ID]
	bucketMs := int64(profile.BucketSeconds) * 1000
	bucketStart := (event.TimestampMs() / bucketMs) * bucketMs

	st.buckets[bucketStart]++

	// Retain baseline_buckets+1 buckets behind the current one. The +1 is
	// essential: a spike may land one bucket after the final baseline
	// bucket, and a tighter window would evict the oldest baseline bucket.
	minStart := bucketStart - int64(profile.BaselineBuckets+1)*bucketMs
	for start := range st.buckets {
		if start < minStart {
			delete(st.buckets, start)
		}
	}

	// Baseline: all completed buckets (everything except the current one),
	// most recent baseline_buckets of them.
	starts := make([]int64, 0, len(st.buckets))
	for start := range st.buckets {
		if start != bucketStart {
			starts = append(starts, start)
		}
	}
	if len(starts) < profile.BaselineBuckets {
		return nil // baseline not ready
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	starts = starts[len(starts)-profile.BaselineBuckets:]

	var sum float64
	for _, start := range starts {
		sum += float64(st.buckets[start])
	}
	mean := sum / float64(len(starts))

	var sqSum float64
	for _, start := range starts {
		d := float64(st.buckets[start]) - mean
		sqSum += d * d
	}
	stddev := math.Sqrt(sqSum / float64(len(starts)))
	if stddev <= 0 {
		return nil // uniform baseline; no division by zero
	}

	current := float64(st.buckets[bucketStart])
	z := (current - mean) / stddev
	if z < profile.ZThreshold {
		return nil
	}

	// One anomaly per spike bucket: every further event in an already
	// reported bucket keeps z above threshold and would re-emit.
	if st.triggered && st.lastBucket == bucketStart {
		return nil
	}

	now := se.nowFn()
	if profile.CooldownSeconds > 0 && st.triggered {
		if now.Sub(st.lastTrigger) < time.Duration(profile.CooldownSeconds)*time.Second {
			return nil
		}
	}
	st.lastTrigger = now
	st.lastBucket = bucketStart
	st.triggered = true

	return &models.Anomaly{
		AnomalyID: uuid.New().String(),
		EventID:   event.EventID,
		RuleID:    StatRuleIDPrefix + profile.ID,
		Severity:  se.severity,
		Message: fmt.Sprintf(
			"Statistical profile %q spike: z=%.2f (current=%.0f mean=%.2f stddev=%.2f) bucket_seconds=%d bucket_start=%d filters=%s",
			profile.ID, z, current, mean, stddev, profile.BucketSeconds, bucketStart,
			describeFilters(profile.Filters)),
		DetectedAt: now,
	}
}

func describeFilters(f models.RuleFilters) string {
	switch {
	case f.EventType != "" && f.Source != "":
		return fmt.Sprintf("event_type=%s,source=%s", f.EventType, f.Source)
	case f.EventType != "":
		return "event_type=" + f.EventType
	case f.Source != "":
		return "source=" + f.Source
	}
	return "all"
}
