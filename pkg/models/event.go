// Package models defines the core EventPulse domain types shared by the
// HTTP API, the stream pipeline, and the rule evaluators.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxNameLength bounds event_type, source, and rule names on the wire.
const MaxNameLength = 255

// Event is a single ingested application event.
//
// EventID is assigned at enqueue time if the client did not provide one and
// is never rewritten by downstream stages. CreatedAt is server-assigned at
// persist time.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Validate checks the semantic constraints of an inbound event.
// A zero Timestamp is rejected; EventID may be empty (assigned at enqueue).
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if len(e.EventType) > MaxNameLength {
		return fmt.Errorf("event_type exceeds %d characters", MaxNameLength)
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if len(e.Source) > MaxNameLength {
		return fmt.Errorf("source exceeds %d characters", MaxNameLength)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required and must be RFC3339")
	}
	if e.EventID != "" {
		if _, err := uuid.Parse(e.EventID); err != nil {
			return fmt.Errorf("event_id must be a UUID: %w", err)
		}
	}
	return nil
}

// EnsureID assigns a fresh UUID if the event has no identity yet and
// returns the effective id.
func (e *Event) EnsureID() string {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	return e.EventID
}

// TimestampMs returns the event time in epoch milliseconds. Evaluator
// windows and buckets are keyed off this value, never wall-clock.
func (e *Event) TimestampMs() int64 {
	return e.Timestamp.UnixMilli()
}
