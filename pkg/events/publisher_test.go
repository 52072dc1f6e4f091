package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/pkg/models"
)

type fakePublishClient struct {
	channels []string
	payloads [][]byte
	err      error
}

func (f *fakePublishClient) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func TestPublishRuleChange(t *testing.T) {
	fake := &fakePublishClient{}
	p := NewPublisher(fake)

	require.NoError(t, p.PublishRuleChange(context.Background(), "update", "r1"))
	require.Len(t, fake.payloads, 1)
	assert.Equal(t, []string{RulesChangedChannel}, fake.channels)

	var msg RuleChangeMessage
	require.NoError(t, json.Unmarshal(fake.payloads[0], &msg))
	assert.Equal(t, "update", msg.Reason)
	assert.Equal(t, "r1", msg.RuleID)
	_, err := time.Parse(time.RFC3339Nano, msg.TS)
	assert.NoError(t, err)
}

func TestPublishAnomaly(t *testing.T) {
	fake := &fakePublishClient{}
	p := NewPublisher(fake)

	detected := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := p.PublishAnomaly(context.Background(), &models.Anomaly{
		AnomalyID:  "a1",
		RuleID:     "r1",
		Severity:   models.SeverityCritical,
		Message:    "threshold crossed",
		DetectedAt: detected,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{AnomalyChannel}, fake.channels)

	var msg AnomalyMessage
	require.NoError(t, json.Unmarshal(fake.payloads[0], &msg))
	assert.Equal(t, "a1", msg.AnomalyID)
	assert.Equal(t, "critical", msg.Severity)
	assert.Equal(t, detected.Format(time.RFC3339Nano), msg.DetectedAt)
}

func TestPublishErrorsAreWrapped(t *testing.T) {
	fake := &fakePublishClient{err: errors.New("connection refused")}
	p := NewPublisher(fake)

	err := p.PublishRuleChange(context.Background(), "create", "r1")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "failed to publish rule change")
	}
}
