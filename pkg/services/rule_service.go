package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// RuleChangeNotifier publishes rule CRUD events so workers can hot-reload
// their snapshot. Implemented by events.Publisher.
type RuleChangeNotifier interface {
	PublishRuleChange(ctx context.Context, reason, ruleID string) error
}

// RuleService implements rule CRUD. Every successful mutation publishes a
// rule-change message; publish failures are logged and swallowed so CRUD
// responses are never affected by pub/sub availability.
type RuleService struct {
	pool     *pgxpool.Pool
	notifier RuleChangeNotifier
}

// NewRuleService creates a new RuleService. notifier may be nil
// (hot-reload disabled, e.g. in tests).
func NewRuleService(pool *pgxpool.Pool, notifier RuleChangeNotifier) *RuleService {
	return &RuleService{pool: pool, notifier: notifier}
}

// Create validates and inserts a new rule.
func (s *RuleService) Create(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, NewValidationError("rule", err.Error())
	}

	rule.RuleID = uuid.New().String()
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal condition: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rules (rule_id, name, enabled, severity, window_seconds, cooldown_seconds, condition, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.RuleID, rule.Name, rule.Enabled, string(rule.Severity),
		rule.WindowSeconds, rule.CooldownSeconds, condition, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule: %w", err)
	}

	s.notifyChange(ctx, "create", rule.RuleID)
	return rule, nil
}

// Get returns one rule by id, or ErrNotFound.
func (s *RuleService) Get(ctx context.Context, ruleID string) (*models.Rule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT rule_id, name, enabled, severity, window_seconds, cooldown_seconds, condition, created_at, updated_at
		 FROM rules WHERE rule_id = $1`, ruleID)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	return rule, nil
}

// List returns all rules, newest first.
func (s *RuleService) List(ctx context.Context) ([]models.Rule, error) {
	return s.list(ctx, false)
}

// ListEnabled returns only enabled rules. This is the snapshot source for
// the evaluators.
func (s *RuleService) ListEnabled(ctx context.Context) ([]models.Rule, error) {
	return s.list(ctx, true)
}

func (s *RuleService) list(ctx context.Context, enabledOnly bool) ([]models.Rule, error) {
	query := `SELECT rule_id, name, enabled, severity, window_seconds, cooldown_seconds, condition, created_at, updated_at
	          FROM rules`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := []models.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// Update replaces every mutable field of an existing rule.
func (s *RuleService) Update(ctx context.Context, ruleID string, rule *models.Rule) (*models.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, NewValidationError("rule", err.Error())
	}

	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal condition: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE rules SET name = $2, enabled = $3, severity = $4, window_seconds = $5,
		        cooldown_seconds = $6, condition = $7, updated_at = $8
		 WHERE rule_id = $1`,
		ruleID, rule.Name, rule.Enabled, string(rule.Severity),
		rule.WindowSeconds, rule.CooldownSeconds, condition, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	s.notifyChange(ctx, "update", ruleID)
	return s.Get(ctx, ruleID)
}

// RulePatch carries the optional fields of a PATCH request. At least one
// field must be set; the handler enforces that before calling Patch.
type RulePatch struct {
	Name            *string               `json:"name,omitempty"`
	Enabled         *bool                 `json:"enabled,omitempty"`
	Severity        *models.Severity      `json:"severity,omitempty"`
	WindowSeconds   *int                  `json:"window_seconds,omitempty"`
	CooldownSeconds *int                  `json:"cooldown_seconds,omitempty"`
	Condition       *models.RuleCondition `json:"condition,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p *RulePatch) Empty() bool {
	return p.Name == nil && p.Enabled == nil && p.Severity == nil &&
		p.WindowSeconds == nil && p.CooldownSeconds == nil && p.Condition == nil
}

// Patch applies a partial update. The merged rule is re-validated before
// being written.
func (s *RuleService) Patch(ctx context.Context, ruleID string, patch *RulePatch) (*models.Rule, error) {
	rule, err := s.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Enabled != nil {
		rule.Enabled = *patch.Enabled
	}
	if patch.Severity != nil {
		rule.Severity = *patch.Severity
	}
	if patch.WindowSeconds != nil {
		rule.WindowSeconds = *patch.WindowSeconds
	}
	if patch.CooldownSeconds != nil {
		rule.CooldownSeconds = *patch.CooldownSeconds
	}
	if patch.Condition != nil {
		rule.Condition = *patch.Condition
	}

	if err := rule.Validate(); err != nil {
		return nil, NewValidationError("rule", err.Error())
	}

	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal condition: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE rules SET name = $2, enabled = $3, severity = $4, window_seconds = $5,
		        cooldown_seconds = $6, condition = $7, updated_at = $8
		 WHERE rule_id = $1`,
		ruleID, rule.Name, rule.Enabled, string(rule.Severity),
		rule.WindowSeconds, rule.CooldownSeconds, condition, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to patch rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	s.notifyChange(ctx, "patch", ruleID)
	return s.Get(ctx, ruleID)
}

// Delete removes a rule.
func (s *RuleService) Delete(ctx context.Context, ruleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.notifyChange(ctx, "delete", ruleID)
	return nil
}

// notifyChange publishes a rule-change message. Best-effort by contract.
func (s *RuleService) notifyChange(ctx context.Context, reason, ruleID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishRuleChange(ctx, reason, ruleID); err != nil {
		slog.Warn("Failed to publish rule change",
			"reason", reason, "rule_id", ruleID, "error", err)
	}
}

func scanRule(row pgx.Row) (*models.Rule, error) {
	var (
		rule      models.Rule
		severity  string
		condition []byte
	)
	if err := row.Scan(&rule.RuleID, &rule.Name, &rule.Enabled, &severity,
		&rule.WindowSeconds, &rule.CooldownSeconds, &condition,
		&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	rule.Severity = models.Severity(severity)
	if err := json.Unmarshal(condition, &rule.Condition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
	}
	return &rule, nil
}
