package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

// ReasonOK is recorded on jobs that finished with a real snapshot.
const ReasonOK = "ok"

// Job tracks one report-generation request. The API returns it on enqueue;
// clients poll GET /api/v1/reports/jobs?job_id= until the status is terminal.
// Only Status, Reason, StartedAt and FinishedAt ever change after insert.
type Job struct {
	ID         uuid.UUID  `db:"id"          json:"job_id"`
	ScopeType  string     `db:"scope_type"  json:"scope_type"`
	ScopeKey   *string    `db:"scope_key"   json:"scope_key"`
	ISOWeek    *string    `db:"iso_week"    json:"iso_week"`
	MonthKey   *string    `db:"month_key"   json:"month_key"`
	Status     string     `db:"status"      json:"status"`
	Reason     *string    `db:"reason"      json:"reason"`
	CreatedBy  string     `db:"created_by"  json:"created_by"`
	RetryOf    *uuid.UUID `db:"retry_of"    json:"retry_of,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	StartedAt  *time.Time `db:"started_at"  json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at"`
}

var validTransitions = map[string][]string{
	JobStatusQueued:  {JobStatusRunning, JobStatusCanceled},
	JobStatusRunning: {JobStatusSucceeded, JobStatusFailed, JobStatusCanceled},
}

// CanTransition reports whether a job may move from one status to another.
// Terminal statuses have no outgoing edges and nothing ever returns to queued.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status is succeeded, failed or canceled.
func IsTerminal(status string) bool {
	switch status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsValidJobStatus reports whether status is one of the five known job states.
func IsValidJobStatus(status string) bool {
	return status == JobStatusQueued || status == JobStatusRunning || IsTerminal(status)
}

// SourcesFor lists the statuses a job may be in when moving to status.
func SourcesFor(status string) []string {
	var from []string
	for _, s := range []string{JobStatusQueued, JobStatusRunning} {
		if CanTransition(s, status) {
			from = append(from, s)
		}
	}
	return from
}
