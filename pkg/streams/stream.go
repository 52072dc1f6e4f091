// Package streams implements the durable event pipeline over Redis
// Streams: the producer that appends ingested events and the consumer
// group drain loop that persists them and runs the rule evaluators.
package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// DefaultStreamKey is the Redis key of the event stream.
const DefaultStreamKey = "events_stream"

// Stream entry field names. payload and metadata are JSON strings;
// everything else is a plain string.
const (
	fieldEventID   = "event_id"
	fieldEventType = "event_type"
	fieldSource    = "source"
	fieldTimestamp = "timestamp"
	fieldPayload   = "payload"
	fieldMetadata  = "metadata"
)

// StreamClient is the subset of the go-redis API the producer and
// consumer use. Satisfied by *redis.Client; faked in tests.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// entryValues flattens an event into stream fields.
func entryValues(event *models.Event) (map[string]any, error) {
	payload, err := json.Marshal(orEmpty(event.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	metadata, err := json.Marshal(orEmpty(event.Metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return map[string]any{
		fieldEventID:   event.EventID,
		fieldEventType: event.EventType,
		fieldSource:    event.Source,
		fieldTimestamp: event.Timestamp.Format(time.RFC3339Nano),
		fieldPayload:   string(payload),
		fieldMetadata:  string(metadata),
	}, nil
}

// parseEntry rebuilds an event from stream fields.
func parseEntry(values map[string]any) (*models.Event, error) {
	event := &models.Event{
		EventID:   stringField(values, fieldEventID),
		EventType: stringField(values, fieldEventType),
		Source:    stringField(values, fieldSource),
	}
	if event.EventID == "" {
		return nil, fmt.Errorf("stream entry missing event_id")
	}
	if event.EventType == "" || event.Source == "" {
		return nil, fmt.Errorf("stream entry missing event_type or source")
	}

	ts, err := time.Parse(time.RFC3339Nano, stringField(values, fieldTimestamp))
	if err != nil {
		return nil, fmt.Errorf("invalid stream entry timestamp: %w", err)
	}
	event.Timestamp = ts

	if raw := stringField(values, fieldPayload); raw != "" {
		if err := json.Unmarshal([]byte(raw), &event.Payload); err != nil {
			return nil, fmt.Errorf("invalid stream entry payload: %w", err)
		}
	}
	if raw := stringField(values, fieldMetadata); raw != "" {
		if err := json.Unmarshal([]byte(raw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("invalid stream entry metadata: %w", err)
		}
	}
	return event, nil
}

func stringField(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
