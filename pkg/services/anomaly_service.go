package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// AnomalyService persists and queries detected anomalies.
type AnomalyService struct {
	pool *pgxpool.Pool
}

// NewAnomalyService creates a new AnomalyService.
func NewAnomalyService(pool *pgxpool.Pool) *AnomalyService {
	return &AnomalyService{pool: pool}
}

// Insert writes one anomaly row. Callers on the hot path treat failures
// as log-only: the triggering event is already persisted.
func (s *AnomalyService) Insert(ctx context.Context, anomaly *models.Anomaly) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO anomalies (anomaly_id, event_id, rule_id, severity, message, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		anomaly.AnomalyID, anomaly.EventID, anomaly.RuleID,
		string(anomaly.Severity), anomaly.Message, anomaly.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

// ListAnomaliesParams filters and paginates the anomalies listing.
type ListAnomaliesParams struct {
	Limit    int
	Offset   int
	RuleID   string
	Severity string
}

// List returns anomalies matching the params, newest first.
func (s *AnomalyService) List(ctx context.Context, params ListAnomaliesParams) ([]models.Anomaly, error) {
	query := `SELECT anomaly_id, event_id, rule_id, severity, message, detected_at
	          FROM anomalies WHERE 1=1`
	args := []any{}

	if params.RuleID != "" {
		args = append(args, params.RuleID)
		query += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}
	if params.Severity != "" {
		args = append(args, params.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}

	args = append(args, params.Limit)
	query += fmt.Sprintf(" ORDER BY detected_at DESC LIMIT $%d", len(args))
	args = append(args, params.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := []models.Anomaly{}
	for rows.Next() {
		var a models.Anomaly
		var severity string
		if err := rows.Scan(&a.AnomalyID, &a.EventID, &a.RuleID,
			&severity, &a.Message, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Severity = models.Severity(severity)
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}
