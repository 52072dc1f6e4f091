package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// AnomalyHandler receives validated anomaly messages.
type AnomalyHandler func(msg AnomalyMessage)

// AnomalySubscriber listens on anomaly_notifications and delivers parsed
// messages to the registered handler. Like the rule subscriber it owns a
// dedicated pub/sub connection.
type AnomalySubscriber struct {
	client   *redis.Client
	handler  AnomalyHandler
	pubsub   *redis.PubSub
	stopOnce sync.Once
	done     chan struct{}
	logger   *slog.Logger
}

// NewAnomalySubscriber creates the subscriber. Start must be called.
func NewAnomalySubscriber(client *redis.Client, handler AnomalyHandler) *AnomalySubscriber {
	return &AnomalySubscriber{
		client:  client,
		handler: handler,
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "anomaly-subscriber"),
	}
}

// Start subscribes on a dedicated connection and begins dispatching.
func (s *AnomalySubscriber) Start(ctx context.Context) error {
	s.pubsub = s.client.Subscribe(ctx, AnomalyChannel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return err
	}

	go s.receiveLoop(ctx)
	s.logger.Info("Anomaly subscriber started", "channel", AnomalyChannel)
	return nil
}

func (s *AnomalySubscriber) receiveLoop(ctx context.Context) {
	defer close(s.done)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.onMessage([]byte(msg.Payload))
		}
	}
}

// onMessage parses and validates one payload. Malformed or incomplete
// messages are logged and skipped; the subscriber never crashes on bad
// input.
func (s *AnomalySubscriber) onMessage(payload []byte) {
	var msg AnomalyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Malformed anomaly payload, skipping", "error", err)
		return
	}
	if msg.AnomalyID == "" || msg.RuleID == "" || msg.Severity == "" {
		s.logger.Warn("Incomplete anomaly payload, skipping",
			"anomaly_id", msg.AnomalyID, "rule_id", msg.RuleID, "severity", msg.Severity)
		return
	}
	s.handler(msg)
}

// Stop unsubscribes and closes the dedicated connection. Idempotent.
func (s *AnomalySubscriber) Stop() {
	s.stopOnce.Do(func() {
		if s.pubsub != nil {
			if err := s.pubsub.Unsubscribe(context.Background(), AnomalyChannel); err != nil {
				s.logger.Warn("Unsubscribe failed", "error", err)
			}
			_ = s.pubsub.Close()
		}
		<-s.done
		s.logger.Info("Anomaly subscriber stopped")
	})
}
