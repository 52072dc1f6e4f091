// Package worker runs the stream-consumer process: it drains the event
// stream, persists events, evaluates detection rules, and fans detected
// anomalies out. One Supervisor owns every long-running piece and their
// shutdown order.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/config"
	"github.com/eventpulse/eventpulse/pkg/database"
	"github.com/eventpulse/eventpulse/pkg/events"
	"github.com/eventpulse/eventpulse/pkg/rules"
	"github.com/eventpulse/eventpulse/pkg/services"
	"github.com/eventpulse/eventpulse/pkg/streams"
)

// connectTimeout bounds the whole initial-connect retry loop for each
// backing store.
const connectTimeout = 2 * time.Minute

// Supervisor wires and runs the worker process.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *database.Client
	redis      *redis.Client
	store      *rules.SnapshotStore
	consumer   *streams.Consumer
	subscriber *events.RuleChangeSubscriber

	consumerDone chan error
}

// NewSupervisor creates an unstarted supervisor.
func NewSupervisor(cfg *config.Config) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		logger:       slog.Default().With("component", "worker-supervisor", "worker_id", cfg.WorkerID),
		consumerDone: make(chan error, 1),
	}
}

// Start connects the backing stores with retry, loads the initial rule
// snapshot, and launches the consumer, the rule-change subscriber, and
// the heartbeat. Returns once everything is running.
func (s *Supervisor) Start(ctx context.Context) error {
	var err error

	s.redis, err = connectRedis(ctx, s.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	s.db, err = connectDatabase(ctx, s.cfg.DatabaseURL)
	if err != nil {
		s.closeRedis()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	eventService := services.NewEventService(s.db.Pool())
	anomalyService := services.NewAnomalyService(s.db.Pool())
	ruleService := services.NewRuleService(s.db.Pool(), nil)
	publisher := events.NewPublisher(s.redis)

	// Initial snapshot, then subscribe. The subscriber confirms its
	// subscription before Start returns, so a rule change landing
	// between these two lines still triggers a reload.
	s.store = rules.NewSnapshotStore()
	enabled, err := ruleService.ListEnabled(ctx)
	if err != nil {
		s.close()
		return fmt.Errorf("failed to load initial rule snapshot: %w", err)
	}
	s.store.Set(enabled)
	s.logger.Info("Initial rule snapshot loaded", "enabled_rules", len(enabled))

	s.subscriber = events.NewRuleChangeSubscriber(s.redis, ruleService, s.store)
	if err := s.subscriber.Start(ctx); err != nil {
		s.close()
		return fmt.Errorf("failed to start rule subscriber: %w", err)
	}

	threshold := rules.NewThresholdEvaluator(time.Now)
	var stat *rules.StatEvaluator
	if len(s.cfg.StatProfiles) > 0 {
		stat = rules.NewStatEvaluator(s.cfg.StatProfiles, rules.StatOptions{}, time.Now)
		s.logger.Info("Statistical detection enabled", "profiles", len(s.cfg.StatProfiles))
	}

	s.consumer = streams.NewConsumer(s.redis, streams.ConsumerConfig{
		Stream:       streams.DefaultStreamKey,
		Group:        s.cfg.ConsumerGroup,
		ConsumerName: s.cfg.WorkerID,
		BatchSize:    int64(s.cfg.BatchSize),
		BlockTimeout: s.cfg.BlockTimeout,
	}, eventService, anomalyService, publisher, s.store, threshold, stat)

	go func() {
		s.consumerDone <- s.consumer.Run(ctx)
	}()
	go s.runHeartbeat(ctx)

	s.logger.Info("Worker started", "group", s.cfg.ConsumerGroup)
	return nil
}

// Wait blocks until the consumer loop exits and returns its error.
func (s *Supervisor) Wait() error {
	return <-s.consumerDone
}

// Stop shuts the moving parts down: the caller cancels the consumer's
// context first, Stop then drains the subscriber and closes connections.
func (s *Supervisor) Stop() {
	if s.subscriber != nil {
		s.subscriber.Stop()
	}
	s.close()
	s.logger.Info("Worker stopped")
}

func (s *Supervisor) close() {
	if s.db != nil {
		s.db.Close()
	}
	s.closeRedis()
}

func (s *Supervisor) closeRedis() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("Error closing redis client", "error", err)
		}
	}
}

// runHeartbeat refreshes the TTL-bounded liveness key until ctx is
// cancelled. The health endpoint reads this key; refresh runs at a
// third of the TTL so one missed beat does not flap the status.
func (s *Supervisor) runHeartbeat(ctx context.Context) {
	beat := func() {
		beatCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := s.redis.Set(beatCtx, events.WorkerHealthKey, s.cfg.WorkerID, s.cfg.HeartbeatTTL).Err()
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("Heartbeat refresh failed", "error", err)
		}
	}

	beat()
	ticker := time.NewTicker(s.cfg.HeartbeatRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// connectRedis parses REDIS_URL and pings with exponential backoff.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(connectTimeout))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// connectDatabase retries the pooled connect (which also applies
// migrations) with exponential backoff.
func connectDatabase(ctx context.Context, url string) (*database.Client, error) {
	return backoff.Retry(ctx, func() (*database.Client, error) {
		return database.NewClient(ctx, database.Config{URL: url})
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(connectTimeout))
}
