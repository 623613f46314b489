package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is one completed analysis for a scope and time window.
// Rows are inserted by the worker and never updated or deleted; the current
// snapshot for a scope is the matching row with the latest CreatedAt.
type Snapshot struct {
	ID              uuid.UUID       `db:"id"                 json:"snapshot_id"`
	ScopeType       string          `db:"scope_type"         json:"scope_type"`
	ScopeKey        *string         `db:"scope_key"          json:"scope_key"`
	ISOWeek         *string         `db:"iso_week"           json:"iso_week"`
	MonthKey        *string         `db:"month_key"          json:"month_key"`
	AnalysisJSON    json.RawMessage `db:"analysis_json"      json:"analysis_json"`
	RowsUsed        int             `db:"rows_used"          json:"rows_used"`
	GenModel        string          `db:"gen_model"          json:"gen_model"`
	GenMS           int64           `db:"gen_ms"             json:"gen_ms"`
	Synthetic       bool            `db:"synthetic"          json:"synthetic"`
	ProducedByJobID *uuid.UUID      `db:"produced_by_job_id" json:"produced_by_job_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at"         json:"created_at"`
}
