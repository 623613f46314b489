package models

import (
	"time"

	"github.com/google/uuid"
)

// Sentinels written at insert time and replaced at most once by enrichment.
const (
	MoodPending  = "pending"
	ThemePending = "pending"
)

// PendingThemes returns a fresh copy of the themes sentinel.
func PendingThemes() []string { return []string{ThemePending} }

// Feedback is one store manager's weekly submission.
type Feedback struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	StoreID        string     `db:"store_id"        json:"store_id"`
	RegionCode     string     `db:"region_code"     json:"region_code"`
	ManagerName    string     `db:"manager_name"    json:"manager_name"`
	ISOWeek        *string    `db:"iso_week"        json:"iso_week"`
	MonthKey       *string    `db:"month_key"       json:"month_key"`
	TopPositive    string     `db:"top_positive"    json:"top_positive"`
	TopNegative    string     `db:"top_negative"    json:"top_negative"`
	PositiveImpact float64    `db:"positive_impact" json:"positive_impact"`
	NegativeImpact float64    `db:"negative_impact" json:"negative_impact"`
	Notes          string     `db:"notes"           json:"notes"`
	OverallMood    string     `db:"overall_mood"    json:"overall_mood"`
	Themes         []string   `db:"themes"          json:"themes"`
	EnrichedAt     *time.Time `db:"enriched_at"     json:"enriched_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
}

// HasContent reports whether any free-text field carries something to enrich.
func (f *Feedback) HasContent() bool {
	return f.TopPositive != "" || f.TopNegative != "" || f.Notes != ""
}

// IsPendingEnrichment reports whether the enrichment fields still hold sentinels.
func (f *Feedback) IsPendingEnrichment() bool {
	return f.OverallMood == MoodPending
}
