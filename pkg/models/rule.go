package models

import (
	"fmt"
	"math"
	"time"
)

// Severity classifies an anomaly or rule.
type Severity string

// Severity values.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Operator is a threshold comparison operator.
type Operator string

// Operator values.
const (
	OpGT  Operator = ">"
	OpGTE Operator = ">="
	OpLT  Operator = "<"
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
	OpNEQ Operator = "!="
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ:
		return true
	}
	return false
}

// Compare applies the operator to (count, value). Unknown operators
// compare false, so a corrupt rule can never trigger.
func (o Operator) Compare(count, value float64) bool {
	switch o {
	case OpGT:
		return count > value
	case OpGTE:
		return count >= value
	case OpLT:
		return count < value
	case OpLTE:
		return count <= value
	case OpEQ:
		return count == value
	case OpNEQ:
		return count != value
	}
	return false
}

// RuleFilters narrows which events a rule or profile matches.
// A missing filter matches everything.
type RuleFilters struct {
	EventType string `json:"event_type,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Matches reports whether the event passes every set filter.
func (f RuleFilters) Matches(e *Event) bool {
	if f.EventType != "" && f.EventType != e.EventType {
		return false
	}
	if f.Source != "" && f.Source != e.Source {
		return false
	}
	return true
}

// RuleCondition describes what a rule evaluates. Only threshold/count
// conditions exist today.
type RuleCondition struct {
	Type     string      `json:"type"`
	Metric   string      `json:"metric"`
	Filters  RuleFilters `json:"filters,omitempty"`
	Operator Operator    `json:"operator"`
	Value    float64     `json:"value"`
}

// Validate checks a condition against the threshold/count schema.
func (c *RuleCondition) Validate() error {
	if c.Type != "threshold" {
		return fmt.Errorf("condition type must be \"threshold\"")
	}
	if c.Metric != "count" {
		return fmt.Errorf("condition metric must be \"count\"")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("invalid operator %q", c.Operator)
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("condition value must be a finite number")
	}
	if len(c.Filters.EventType) > MaxNameLength || len(c.Filters.Source) > MaxNameLength {
		return fmt.Errorf("filter values exceed %d characters", MaxNameLength)
	}
	return nil
}

// Rule is an operator-configured detection rule. Only enabled rules
// participate in the evaluator snapshot.
type Rule struct {
	RuleID          string        `json:"rule_id"`
	Name            string        `json:"name"`
	Enabled         bool          `json:"enabled"`
	Severity        Severity      `json:"severity"`
	WindowSeconds   int           `json:"window_seconds"`
	CooldownSeconds int           `json:"cooldown_seconds"`
	Condition       RuleCondition `json:"condition"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Validate checks the full rule schema.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", MaxNameLength)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if r.WindowSeconds < 1 {
		return fmt.Errorf("window_seconds must be >= 1")
	}
	if r.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must be >= 0")
	}
	return r.Condition.Validate()
}
