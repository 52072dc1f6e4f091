package models

import "fmt"

// StatProfile configures one statistical (z-score) detection profile.
// Profiles are operator configuration on the worker, not CRUD resources.
type StatProfile struct {
	ID              string      `json:"id"`
	BucketSeconds   int         `json:"bucket_seconds"`
	BaselineBuckets int         `json:"baseline_buckets"`
	ZThreshold      float64     `json:"z_threshold"`
	CooldownSeconds int         `json:"cooldown_seconds,omitempty"`
	Filters         RuleFilters `json:"filters,omitempty"`
}

// Validate checks profile constraints. BaselineBuckets must be at least 2
// because a standard deviation needs two samples.
func (p *StatProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if p.BucketSeconds < 1 {
		return fmt.Errorf("bucket_seconds must be >= 1")
	}
	if p.BaselineBuckets < 2 {
		return fmt.Errorf("baseline_buckets must be >= 2")
	}
	if p.ZThreshold <= 0 {
		return fmt.Errorf("z_threshold must be positive")
	}
	if p.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must be >= 0")
	}
	return nil
}
