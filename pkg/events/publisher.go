package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// publishClient is the subset of go-redis used for publishing.
// Satisfied by *redis.Client.
type publishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher publishes rule-change and anomaly messages. Publishing is
// best-effort by contract: callers log and swallow errors so neither
// CRUD responses nor the consumer hot path ever block on pub/sub.
type Publisher struct {
	client publishClient
}

// NewPublisher creates a Publisher.
func NewPublisher(client publishClient) *Publisher {
	return &Publisher{client: client}
}

// PublishRuleChange announces one rule mutation on rules_changed.
func (p *Publisher) PublishRuleChange(ctx context.Context, reason, ruleID string) error {
	payload, err := json.Marshal(RuleChangeMessage{
		TS:     time.Now().Format(time.RFC3339Nano),
		Reason: reason,
		RuleID: ruleID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rule change: %w", err)
	}
	if err := p.client.Publish(ctx, RulesChangedChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish rule change: %w", err)
	}
	return nil
}

// PublishAnomaly announces one detected anomaly on anomaly_notifications.
func (p *Publisher) PublishAnomaly(ctx context.Context, anomaly *models.Anomaly) error {
	payload, err := json.Marshal(AnomalyMessage{
		AnomalyID:  anomaly.AnomalyID,
		RuleID:     anomaly.RuleID,
		Severity:   string(anomaly.Severity),
		Message:    anomaly.Message,
		DetectedAt: anomaly.DetectedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly: %w", err)
	}
	if err := p.client.Publish(ctx, AnomalyChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish anomaly: %w", err)
	}
	return nil
}
