package models

import "time"

// Anomaly is a detection produced by an evaluator.
//
// EventID references the triggering event but is deliberately not a foreign
// key: event-cleanup jobs must never break anomaly inserts.
type Anomaly struct {
	AnomalyID  string    `json:"anomaly_id"`
	EventID    string    `json:"event_id"`
	RuleID     string    `json:"rule_id"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}
