package streams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/pkg/models"
)

func sampleEvent() *models.Event {
	return &models.Event{
		EventID:   "6b2e9c1a-6c3f-4a36-9f6e-0d8f0f1b2c3d",
		EventType: "user.login",
		Source:    "auth-service",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC),
		Payload:   map[string]any{"user_id": "u-1"},
		Metadata:  map[string]any{"region": "eu-west-1"},
	}
}

func TestEntryRoundTrip(t *testing.T) {
	event := sampleEvent()

	values, err := entryValues(event)
	require.NoError(t, err)

	got, err := parseEntry(values)
	require.NoError(t, err)

	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, event.EventType, got.EventType)
	assert.Equal(t, event.Source, got.Source)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, "u-1", got.Payload["user_id"])
	assert.Equal(t, "eu-west-1", got.Metadata["region"])
}

func TestEntryValues_NilMapsBecomeEmptyObjects(t *testing.T) {
	event := sampleEvent()
	event.Payload = nil
	event.Metadata = nil

	values, err := entryValues(event)
	require.NoError(t, err)
	assert.Equal(t, "{}", values[fieldPayload])
	assert.Equal(t, "{}", values[fieldMetadata])
}

func TestParseEntry_Malformed(t *testing.T) {
	valid, err := entryValues(sampleEvent())
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(map[string]any)
		wantErr string
	}{
		{"missing event_id", func(v map[string]any) { delete(v, fieldEventID) }, "missing event_id"},
		{"missing event_type", func(v map[string]any) { v[fieldEventType] = "" }, "missing event_type"},
		{"missing source", func(v map[string]any) { delete(v, fieldSource) }, "missing event_type or source"},
		{"bad timestamp", func(v map[string]any) { v[fieldTimestamp] = "yesterday" }, "invalid stream entry timestamp"},
		{"bad payload json", func(v map[string]any) { v[fieldPayload] = "{not json" }, "invalid stream entry payload"},
		{"bad metadata json", func(v map[string]any) { v[fieldMetadata] = "[1,2" }, "invalid stream entry metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make(map[string]any, len(valid))
			for k, v := range valid {
				values[k] = v
			}
			tt.mutate(values)

			_, err := parseEntry(values)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProducerEnqueue(t *testing.T) {
	fake := newFakeStreamClient(nil)
	producer := NewProducer(fake, DefaultStreamKey)

	id, err := producer.Enqueue(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "1-0", id)

	require.Len(t, fake.added, 1)
	args := fake.added[0]
	assert.Equal(t, DefaultStreamKey, args.Stream)
	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user.login", values[fieldEventType])
	assert.Equal(t, "auth-service", values[fieldSource])
}
