package api

import (
	"github.com/eventpulse/eventpulse/pkg/database"
	"github.com/eventpulse/eventpulse/pkg/models"
)

// EventAcceptedResponse acknowledges a single enqueued event.
type EventAcceptedResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// BatchAcceptedResponse acknowledges an enqueued batch.
type BatchAcceptedResponse struct {
	Count    int      `json:"count"`
	EventIDs []string `json:"event_ids"`
	Status   string   `json:"status"`
}

// Pagination echoes the effective paging of a listing.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// EventListResponse wraps the events listing.
type EventListResponse struct {
	Data       []models.Event `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// AnomalyListResponse wraps the anomalies listing.
type AnomalyListResponse struct {
	Data       []models.Anomaly `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// RuleListResponse wraps the rules listing.
type RuleListResponse struct {
	Rules []models.Rule `json:"rules"`
	Count int           `json:"count"`
}

// ComponentHealth reports one dependency inside the health response.
type ComponentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the GET /api/v1/events/health body.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database ComponentHealth        `json:"database"`
	Redis    ComponentHealth        `json:"redis"`
	Worker   ComponentHealth        `json:"worker"`
	Stats    *database.HealthStatus `json:"pool_stats,omitempty"`
}
