package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// EventService persists and queries ingested events.
type EventService struct {
	pool *pgxpool.Pool
}

// NewEventService creates a new EventService.
func NewEventService(pool *pgxpool.Pool) *EventService {
	return &EventService{pool: pool}
}

// Insert writes the event and reports whether a row was actually inserted.
// A primary-key conflict on event_id succeeds silently with inserted=false:
// this is the idempotence boundary that absorbs at-least-once redelivery.
// No other failure mode is swallowed.
func (s *EventService) Insert(ctx context.Context, event *models.Event) (bool, error) {
	payload, err := marshalObject(event.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payload: %w", err)
	}
	metadata, err := marshalObject(event.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO events (event_id, event_type, source, timestamp, payload, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.EventType, event.Source, event.Timestamp,
		payload, metadata, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns one event by id, or ErrNotFound.
func (s *EventService) Get(ctx context.Context, eventID string) (*models.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT event_id, event_type, source, timestamp, payload, metadata, created_at
		 FROM events WHERE event_id = $1`, eventID)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return event, nil
}

// ListEventsParams filters and paginates the events listing.
// Limit is expected pre-clamped to 1..500 by the HTTP layer.
type ListEventsParams struct {
	Limit     int
	Offset    int
	EventType string
	Source    string
	From      *time.Time
	To        *time.Time
}

// List returns events matching the params, newest first.
func (s *EventService) List(ctx context.Context, params ListEventsParams) ([]models.Event, error) {
	query := `SELECT event_id, event_type, source, timestamp, payload, metadata, created_at
	          FROM events WHERE 1=1`
	args := []any{}

	if params.EventType != "" {
		args = append(args, params.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if params.Source != "" {
		args = append(args, params.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if params.From != nil {
		args = append(args, *params.From)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if params.To != nil {
		args = append(args, *params.To)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	args = append(args, params.Limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	args = append(args, params.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// MetricsParams configures the windowed aggregation query.
type MetricsParams struct {
	WindowSeconds int
	GroupBy       string // "event_type" or "source"
	EventType     string
	Source        string
}

// MetricBucket is one grouped count within the window.
type MetricBucket struct {
	Key        string  `json:"key"`
	Count      int64   `json:"count"`
	RatePerSec float64 `json:"rate_per_sec"`
}

// MetricsResult is the aggregation response body.
type MetricsResult struct {
	WindowSeconds int            `json:"window_seconds"`
	GroupBy       string         `json:"group_by"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Metrics       []MetricBucket `json:"metrics"`
}

// Metrics aggregates event counts over the trailing window, grouped by
// event_type or source.
func (s *EventService) Metrics(ctx context.Context, params MetricsParams) (*MetricsResult, error) {
	groupCol := "event_type"
	if params.GroupBy == "source" {
		groupCol = "source"
	}

	to := time.Now()
	from := to.Add(-time.Duration(params.WindowSeconds) * time.Second)

	query := `SELECT ` + groupCol + `, COUNT(*) FROM events WHERE timestamp >= $1 AND timestamp <= $2`
	args := []any{from, to}
	if params.EventType != "" {
		args = append(args, params.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if params.Source != "" {
		args = append(args, params.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	query += " GROUP BY 1 ORDER BY COUNT(*) DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	buckets := []MetricBucket{}
	for rows.Next() {
		var b MetricBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		b.RatePerSec = float64(b.Count) / float64(params.WindowSeconds)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &MetricsResult{
		WindowSeconds: params.WindowSeconds,
		GroupBy:       groupCol,
		From:          from,
		To:            to,
		Metrics:       buckets,
	}, nil
}

// scanEvent reads one events row. payload and metadata are JSONB columns.
func scanEvent(row pgx.Row) (*models.Event, error) {
	var (
		event    models.Event
		payload  []byte
		metadata []byte
	)
	if err := row.Scan(&event.EventID, &event.EventType, &event.Source,
		&event.Timestamp, &payload, &metadata, &event.CreatedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &event, nil
}

// marshalObject renders a possibly-nil map as a JSON object.
func marshalObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
