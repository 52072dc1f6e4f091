// Package events provides real-time distribution: Redis pub/sub for rule
// hot-reload and anomaly fan-out, and the WebSocket connection manager
// that pushes anomalies to browser dashboards.
package events

// Pub/sub channels.
const (
	// RulesChangedChannel carries rule CRUD notifications. Workers
	// subscribed here reload their evaluator snapshot.
	RulesChangedChannel = "rules_changed"

	// AnomalyChannel carries detected anomalies for fan-out.
	AnomalyChannel = "anomaly_notifications"
)

// WorkerHealthKey is the TTL-bounded key the worker refreshes as a
// liveness heartbeat. The ingest health endpoint reads it.
const WorkerHealthKey = "worker:health"

// RuleChangeMessage is the wire shape on RulesChangedChannel.
type RuleChangeMessage struct {
	TS     string `json:"ts"`
	Reason string `json:"reason"` // create, update, patch, delete
	RuleID string `json:"rule_id"`
}

// AnomalyMessage is the wire shape on AnomalyChannel.
type AnomalyMessage struct {
	AnomalyID  string `json:"anomaly_id"`
	RuleID     string `json:"rule_id"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	DetectedAt string `json:"detected_at"`
}
