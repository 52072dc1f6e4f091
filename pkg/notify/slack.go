package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/eventpulse/eventpulse/pkg/events"
)

// slackPoster posts one anomaly to Slack. Split out so dispatcher tests
// can substitute a fake.
type slackPoster interface {
	Post(ctx context.Context, msg events.AnomalyMessage) error
}

// slackWebhook posts anomalies to an incoming-webhook URL.
type slackWebhook struct {
	url string
}

func newSlackWebhook(url string) *slackWebhook {
	return &slackWebhook{url: url}
}

// severityColor maps anomaly severity to Slack attachment colors.
func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "#d00000"
	case "warning":
		return "#e8a317"
	default:
		return "#2e86c1"
	}
}

// Post sends the anomaly as a single attachment message.
func (w *slackWebhook) Post(ctx context.Context, msg events.AnomalyMessage) error {
	if w.url == "" {
		return fmt.Errorf("slack webhook URL is not configured")
	}

	payload := &slack.WebhookMessage{
		Text: fmt.Sprintf("Anomaly detected (%s)", msg.Severity),
		Attachments: []slack.Attachment{
			{
				Color: severityColor(msg.Severity),
				Text:  msg.Message,
				Fields: []slack.AttachmentField{
					{Title: "Anomaly ID", Value: msg.AnomalyID, Short: true},
					{Title: "Rule ID", Value: msg.RuleID, Short: true},
					{Title: "Severity", Value: msg.Severity, Short: true},
					{Title: "Detected At", Value: msg.DetectedAt, Short: true},
				},
			},
		},
	}

	if err := slack.PostWebhookContext(ctx, w.url, payload); err != nil {
		return fmt.Errorf("failed to post Slack webhook: %w", err)
	}
	return nil
}
