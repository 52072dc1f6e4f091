// EventPulse API server — ingests events onto the stream, serves the
// read endpoints and rule CRUD, and pushes anomalies to WebSocket
// dashboards and notification channels.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/api"
	"github.com/eventpulse/eventpulse/pkg/config"
	"github.com/eventpulse/eventpulse/pkg/database"
	"github.com/eventpulse/eventpulse/pkg/events"
	"github.com/eventpulse/eventpulse/pkg/notify"
	"github.com/eventpulse/eventpulse/pkg/services"
	"github.com/eventpulse/eventpulse/pkg/streams"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.SetupLogging()

	slog.Info("Starting EventPulse API", "addr", cfg.Addr())

	ctx := context.Background()

	// Database (applies pending migrations).
	dbClient, err := database.NewClient(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// Redis: stream producer, pub/sub, health probes.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("Error closing redis client", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to ping redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to Redis")

	// Domain services.
	publisher := events.NewPublisher(redisClient)
	eventService := services.NewEventService(dbClient.Pool())
	anomalyService := services.NewAnomalyService(dbClient.Pool())
	ruleService := services.NewRuleService(dbClient.Pool(), publisher)
	producer := streams.NewProducer(redisClient, streams.DefaultStreamKey)
	slog.Info("Services initialized")

	// Anomaly fan-out: pub/sub -> dispatcher -> WebSocket dashboards,
	// Slack, email.
	connManager := events.NewConnectionManager(10 * time.Second)
	heartbeatCtx, heartbeatCancel := context.WithCancel(ctx)
	defer heartbeatCancel()
	go connManager.RunHeartbeat(heartbeatCtx)

	dispatcher := notify.NewDispatcher(notify.Config{
		WebSocket: notify.WebSocketConfig{Enabled: cfg.Notifications.WebSocketEnabled},
		Slack: notify.SlackConfig{
			Enabled:    cfg.Notifications.SlackEnabled,
			WebhookURL: cfg.Notifications.SlackWebhookURL,
		},
		Email: notify.EmailConfig{
			Enabled:    cfg.Notifications.EmailEnabled,
			SMTPHost:   cfg.Notifications.EmailSMTPHost,
			Recipients: cfg.Notifications.EmailRecipients,
		},
	}, connManager)

	anomalySub := events.NewAnomalySubscriber(redisClient, func(msg events.AnomalyMessage) {
		dispatcher.Dispatch(ctx, msg)
	})
	if err := anomalySub.Start(ctx); err != nil {
		slog.Error("Failed to start anomaly subscriber", "error", err)
		os.Exit(1)
	}
	defer anomalySub.Stop()
	slog.Info("Anomaly fan-out initialized")

	// HTTP server.
	httpServer := api.NewServer(dbClient, redisClient,
		eventService, anomalyService, ruleService, producer, connManager)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := httpServer.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: stop accepting requests, then drop dashboards.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	heartbeatCancel()
	connManager.CloseAll()

	slog.Info("Shutdown complete")
}
