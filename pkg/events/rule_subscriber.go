package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/rules"
)

// RuleLister fetches the enabled rule set. Implemented by
// services.RuleService.
type RuleLister interface {
	ListEnabled(ctx context.Context) ([]models.Rule, error)
}

// RuleChangeSubscriber listens on rules_changed and atomically swaps the
// evaluator snapshot. It owns a dedicated pub/sub connection: the
// subscribe state precludes regular commands on the same connection.
//
// Rapid CRUD bursts are coalesced through a single boolean: a message
// arriving while a reload is in flight is skipped, because the in-flight
// reload already reads the post-mutation rule set.
type RuleChangeSubscriber struct {
	client    *redis.Client
	rules     RuleLister
	store     *rules.SnapshotStore
	pubsub    *redis.PubSub
	reloading atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
	logger    *slog.Logger
}

// NewRuleChangeSubscriber creates the subscriber. Start must be called.
func NewRuleChangeSubscriber(client *redis.Client, lister RuleLister, store *rules.SnapshotStore) *RuleChangeSubscriber {
	return &RuleChangeSubscriber{
		client: client,
		rules:  lister,
		store:  store,
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "rule-subscriber"),
	}
}

// Start subscribes on a dedicated connection and begins dispatching.
// go-redis re-establishes the subscription on connection loss.
func (s *RuleChangeSubscriber) Start(ctx context.Context) error {
	s.pubsub = s.client.Subscribe(ctx, RulesChangedChannel)

	// Force the subscription to be established before returning, so a
	// reload is never missed between startup snapshot load and here.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return err
	}

	go s.receiveLoop(ctx)
	s.logger.Info("Rule change subscriber started", "channel", RulesChangedChannel)
	return nil
}

func (s *RuleChangeSubscriber) receiveLoop(ctx context.Context) {
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
			s.onMessage(ctx, []byte(msg.Payload))
		}
	}
}

// onMessage parses a rule-change notification and triggers a coalesced
// snapshot reload. Malformed payloads are logged and skipped.
func (s *RuleChangeSubscriber) onMessage(ctx context.Context, payload []byte) {
	var msg RuleChangeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Malformed rule change payload, skipping", "error", err)
		return
	}

	if !s.reloading.CompareAndSwap(false, true) {
		s.logger.Debug("Reload already in flight, coalescing",
			"reason", msg.Reason, "rule_id", msg.RuleID)
		return
	}

	go func() {
		defer s.reloading.Store(false)
		s.reload(ctx, msg)
	}()
}

// reload fetches the enabled set and swaps the snapshot. On error the
// previous snapshot is retained.
func (s *RuleChangeSubscriber) reload(ctx context.Context, msg RuleChangeMessage) {
	enabled, err := s.rules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("Rule reload failed; keeping previous snapshot",
			"reason", msg.Reason, "rule_id", msg.RuleID, "error", err)
		return
	}
	s.store.Set(enabled)
	s.logger.Info("Rule snapshot reloaded",
		"reason", msg.Reason, "rule_id", msg.RuleID, "enabled_rules", len(enabled))
}

// Stop unsubscribes and closes the dedicated connection. Idempotent.
func (s *RuleChangeSubscriber) Stop() {
	s.stopOnce.Do(func() {
		if s.pubsub != nil {
			if err := s.pubsub.Unsubscribe(context.Background(), RulesChangedChannel); err != nil {
				s.logger.Warn("Unsubscribe failed", "error", err)
			}
			_ = s.pubsub.Close()
		}
		<-s.done
		s.logger.Info("Rule change subscriber stopped")
	})
}
