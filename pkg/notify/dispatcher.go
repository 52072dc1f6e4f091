// Package notify fans detected anomalies out to the configured
// notification channels: WebSocket dashboards, a Slack webhook, and a
// logged email stub. Channel failures are isolated; one bad channel
// never blocks the others.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/eventpulse/eventpulse/pkg/events"
)

// WebSocketConfig controls dashboard broadcasting.
type WebSocketConfig struct {
	Enabled bool
}

// SlackConfig controls the Slack webhook channel.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
}

// EmailConfig controls the email channel. Delivery is not implemented;
// when enabled, the dispatcher logs what would have been sent.
type EmailConfig struct {
	Enabled    bool
	SMTPHost   string
	Recipients []string
}

// Config selects which channels receive anomalies.
type Config struct {
	WebSocket WebSocketConfig
	Slack     SlackConfig
	Email     EmailConfig
}

// Broadcaster pushes an anomaly to connected dashboards and reports how
// many received it. Implemented by events.ConnectionManager.
type Broadcaster interface {
	BroadcastAnomaly(msg events.AnomalyMessage) int
}

// slackTimeout bounds a single webhook post so a slow Slack endpoint
// cannot stall the dispatch goroutine.
const slackTimeout = 10 * time.Second

// Dispatcher routes anomaly messages to the enabled channels.
type Dispatcher struct {
	cfg         Config
	broadcaster Broadcaster
	slack       slackPoster
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels. The
// broadcaster may be nil when WebSocket is disabled.
func NewDispatcher(cfg Config, broadcaster Broadcaster) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		broadcaster: broadcaster,
		slack:       newSlackWebhook(cfg.Slack.WebhookURL),
		logger:      slog.Default().With("component", "notify-dispatcher"),
	}
}

// Dispatch delivers one anomaly to every enabled channel. Each channel
// failure is logged and does not affect the others.
func (d *Dispatcher) Dispatch(ctx context.Context, msg events.AnomalyMessage) {
	if d.cfg.WebSocket.Enabled && d.broadcaster != nil {
		sent := d.broadcaster.BroadcastAnomaly(msg)
		d.logger.Debug("Anomaly pushed to dashboards",
			"anomaly_id", msg.AnomalyID, "clients", sent)
	}

	if d.cfg.Slack.Enabled {
		slackCtx, cancel := context.WithTimeout(ctx, slackTimeout)
		if err := d.slack.Post(slackCtx, msg); err != nil {
			d.logger.Error("Slack notification failed",
				"anomaly_id", msg.AnomalyID, "error", err)
		}
		cancel()
	}

	if d.cfg.Email.Enabled {
		// Email delivery is a stub: record what would have been sent.
		d.logger.Info("Email notification (not sent, delivery disabled)",
			"anomaly_id", msg.AnomalyID,
			"severity", msg.Severity,
			"smtp_host", d.cfg.Email.SMTPHost,
			"recipients", d.cfg.Email.Recipients)
	}
}
