package streams

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/rules"
)

// EventInserter is the idempotent event persistence boundary.
type EventInserter interface {
	Insert(ctx context.Context, event *models.Event) (bool, error)
}

// AnomalyInserter persists detected anomalies.
type AnomalyInserter interface {
	Insert(ctx context.Context, anomaly *models.Anomaly) error
}

// AnomalyPublisher fans an anomaly out over pub/sub. May be nil.
type AnomalyPublisher interface {
	PublishAnomaly(ctx context.Context, anomaly *models.Anomaly) error
}

// ConsumerConfig configures the stream drain loop.
type ConsumerConfig struct {
	Stream       string
	Group        string
	ConsumerName string
	BatchSize    int64
	BlockTimeout time.Duration
}

// Consumer is the single long-running stream drain loop. It owns the
// evaluator state: its loop is a sequential drain and the sole writer, so
// the evaluators need no locking.
//
// Delivery is at-least-once. Acknowledgement strictly follows successful
// persistence; rule evaluation strictly follows acknowledgement. A crash
// between persist and ack causes redelivery, absorbed by the primary-key
// idempotence in the event inserter. Entries stuck in another consumer's
// pending list are not reclaimed here; that is deferred to a retry/DLQ
// phase.
type Consumer struct {
	client    StreamClient
	config    ConsumerConfig
	events    EventInserter
	anomalies AnomalyInserter
	publisher AnomalyPublisher
	store     *rules.SnapshotStore
	threshold *rules.ThresholdEvaluator
	stat      *rules.StatEvaluator
	logger    *slog.Logger
}

// NewConsumer wires a consumer. publisher and stat may be nil.
func NewConsumer(client StreamClient, config ConsumerConfig, events EventInserter,
	anomalies AnomalyInserter, publisher AnomalyPublisher,
	store *rules.SnapshotStore, threshold *rules.ThresholdEvaluator, stat *rules.StatEvaluator) *Consumer {

	if config.Stream == "" {
		config.Stream = DefaultStreamKey
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = 5 * time.Second
	}

	return &Consumer{
		client:    client,
		config:    config,
		events:    events,
		anomalies: anomalies,
		publisher: publisher,
		store:     store,
		threshold: threshold,
		stat:      stat,
		logger: slog.Default().With(
			"component", "stream-consumer",
			"group", config.Group,
			"consumer", config.ConsumerName),
	}
}

// Run creates the consumer group, drains this consumer's own pending
// entries, then blocks on new entries until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	// Redelivery pass: re-read our own pending list before taking new
	// work, so entries delivered but unacknowledged before a crash are
	// persisted first.
	c.processPending(ctx)

	c.logger.Info("Stream consumer started", "stream", c.config.Stream)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopping")
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.config.Group,
			Consumer: c.config.ConsumerName,
			Streams:  []string{c.config.Stream, ">"},
			Count:    c.config.BatchSize,
			Block:    c.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // block timeout, nothing new
			}
			if ctx.Err() != nil {
				c.logger.Info("Stream consumer stopping")
				return nil
			}
			c.logger.Error("Stream read failed", "error", err)
			c.sleep(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.processEntry(ctx, msg)
			}
		}
	}
}

// ensureGroup creates the consumer group with the "new entries only"
// cursor, creating the stream if absent. Group-exists errors are ignored:
// creation is idempotent across restarts and replicas.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// processPending issues a group-read with cursor 0, which re-reads this
// consumer's pending entries. Entries nil-ified by stream trimming after
// a prior acknowledgement are acknowledged and skipped.
func (c *Consumer) processPending(ctx context.Context) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.ConsumerName,
		Streams:  []string{c.config.Stream, "0"},
		Count:    c.config.BatchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error("Pending read failed", "error", err)
		}
		return
	}

	pending := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if len(msg.Values) == 0 {
				// Entry trimmed from the stream; clear it from the
				// pending list and move on.
				c.ack(ctx, msg.ID)
				continue
			}
			pending++
			c.processEntry(ctx, msg)
		}
	}
	if pending > 0 {
		c.logger.Info("Recovered pending entries", "count", pending)
	}
}

// processEntry runs one stream entry through the two error boundaries.
//
// Persistence boundary: parse and insert. Success or duplicate
// acknowledges the entry; any failure leaves it pending for redelivery
// and skips evaluation for this attempt.
//
// Rule-evaluation boundary: runs only after acknowledgement. Evaluator
// output is persisted and published best-effort; failures are logged and
// never propagate — the event is already durable.
func (c *Consumer) processEntry(ctx context.Context, msg redis.XMessage) {
	event, err := parseEntry(msg.Values)
	if err != nil {
		c.logger.Error("Failed to parse stream entry; leaving pending",
			"stream_id", msg.ID, "error", err)
		return
	}

	inserted, err := c.events.Insert(ctx, event)
	if err != nil {
		c.logger.Error("Failed to persist event; leaving pending for redelivery",
			"stream_id", msg.ID, "event_id", event.EventID, "error", err)
		return
	}
	if !inserted {
		c.logger.Debug("Duplicate event absorbed", "event_id", event.EventID)
	}

	c.ack(ctx, msg.ID)

	c.evaluate(ctx, event)
}

// evaluate runs both evaluators against the event and handles emitted
// anomalies. A fresh snapshot read per entry picks up hot reloads.
func (c *Consumer) evaluate(ctx context.Context, event *models.Event) {
	var anomalies []models.Anomaly

	if c.threshold != nil && c.store != nil {
		if snapshot := c.store.Get(); len(snapshot) > 0 {
			anomalies = c.threshold.Evaluate(event, snapshot)
		}
	}
	if c.stat != nil {
		anomalies = append(anomalies, c.stat.EvaluateEvent(event)...)
	}

	for i := range anomalies {
		anomaly := &anomalies[i]
		c.logger.Info("Anomaly detected",
			"rule_id", anomaly.RuleID,
			"event_id", anomaly.EventID,
			"severity", anomaly.Severity)

		if err := c.anomalies.Insert(ctx, anomaly); err != nil {
			c.logger.Error("Failed to persist anomaly",
				"anomaly_id", anomaly.AnomalyID, "error", err)
		}
		if c.publisher != nil {
			if err := c.publisher.PublishAnomaly(ctx, anomaly); err != nil {
				c.logger.Warn("Failed to publish anomaly",
					"anomaly_id", anomaly.AnomalyID, "error", err)
			}
		}
	}
}

func (c *Consumer) ack(ctx context.Context, streamID string) {
	if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, streamID).Err(); err != nil {
		c.logger.Warn("Failed to acknowledge entry", "stream_id", streamID, "error", err)
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
