package streams

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// Producer appends events to the durable stream. One entry per call, with
// the stream-assigned id returned.
type Producer struct {
	client StreamClient
	stream string
}

// NewProducer creates a producer for the given stream key.
func NewProducer(client StreamClient, stream string) *Producer {
	if stream == "" {
		stream = DefaultStreamKey
	}
	return &Producer{client: client, stream: stream}
}

// Enqueue appends one event and returns the assigned stream id. The
// event must already carry its identity; enqueue never rewrites it.
func (p *Producer) Enqueue(ctx context.Context, event *models.Event) (string, error) {
	values, err := entryValues(event)
	if err != nil {
		return "", err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", p.stream, err)
	}
	return id, nil
}
