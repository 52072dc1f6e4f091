// EventPulse worker — drains the event stream, persists events with
// idempotent inserts, evaluates detection rules, and publishes detected
// anomalies.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eventpulse/eventpulse/pkg/config"
	"github.com/eventpulse/eventpulse/pkg/worker"
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

	slog.Info("Starting EventPulse worker",
		"worker_id", cfg.WorkerID,
		"group", cfg.ConsumerGroup)

	// The consumer loop stops when this context is cancelled; entries
	// mid-flight finish their persist/ack/evaluate sequence first.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor := worker.NewSupervisor(cfg)
	if err := supervisor.Start(runCtx); err != nil {
		slog.Error("Failed to start worker", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan error, 1)
	go func() { done <- supervisor.Wait() }()

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
		cancel()

		// Bounded drain: let the consumer finish its current entry,
		// but never hang shutdown past the configured timeout.
		select {
		case <-done:
		case <-time.After(cfg.ShutdownTimeout):
			slog.Warn("Shutdown timeout exceeded; exiting with entries pending",
				"timeout", cfg.ShutdownTimeout)
		}
	case err := <-done:
		if err != nil {
			slog.Error("Consumer loop failed", "error", err)
		}
	}

	supervisor.Stop()
	slog.Info("Shutdown complete")
}
