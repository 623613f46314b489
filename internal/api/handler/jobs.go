package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/storepulse/internal/api/middleware"
	"github.com/kiranshivaraju/storepulse/internal/api/response"
	"github.com/kiranshivaraju/storepulse/internal/report"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
)

// Jobs is the part of report.Service the job endpoints depend on.
type Jobs interface {
	Enqueue(ctx context.Context, p report.EnqueueParams) (*models.Job, error)
	Poll(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error)
	Cancel(ctx context.Context, id uuid.UUID, note string) (*models.Job, error)
	LatestSnapshot(ctx context.Context, sc scope.Scope) (*models.Snapshot, error)
}

type enqueueRequest struct {
	ScopeType string  `json:"scope_type"`
	ScopeKey  string  `json:"scope_key"`
	ISOWeek   string  `json:"iso_week"`
	MonthKey  string  `json:"month_key"`
	CreatedBy string  `json:"created_by"`
	RetryOf   *string `json:"retry_of"`
}

type jobResponse struct {
	Job *models.Job `json:"job"`
}

// NewEnqueueJobHandler returns an http.HandlerFunc for POST /api/v1/reports/jobs.
// It answers 202 as soon as the job row exists.
func NewEnqueueJobHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		params := report.EnqueueParams{
			ScopeType: req.ScopeType,
			ScopeKey:  req.ScopeKey,
			ISOWeek:   req.ISOWeek,
			MonthKey:  req.MonthKey,
			CreatedBy: req.CreatedBy,
		}
		if params.CreatedBy == "" {
			params.CreatedBy, _ = mw.GetCallerName(r)
		}
		if req.RetryOf != nil && *req.RetryOf != "" {
			id, err := uuid.Parse(*req.RetryOf)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "retry_of must be a job id", nil)
				return
			}
			params.RetryOf = &id
		}

		job, err := svc.Enqueue(r.Context(), params)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Accepted(w, jobResponse{Job: job})
	}
}

// NewPollJobHandler returns an http.HandlerFunc for GET /api/v1/reports/jobs?job_id=.
// An unknown id is not an error: the job field is null.
func NewPollJobHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("job_id")
		if raw == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id is required", nil)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
			return
		}

		job, err := svc.Poll(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, jobResponse{Job: job})
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/reports/jobs/list.
func NewListJobsHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer", nil)
				return
			}
			limit = n
		}

		jobs, err := svc.ListJobs(r.Context(), q.Get("status"), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}
		response.List(w, map[string]any{"jobs": jobs},
			response.ListMeta{Limit: store.NormalizeLimit(limit), Count: len(jobs)})
	}
}

// NewLatestSnapshotHandler returns an http.HandlerFunc for GET /api/v1/snapshots/latest.
// A scope with no snapshot yet yields a null snapshot, not a 404.
func NewLatestSnapshotHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sc := scope.New(q.Get("scope_type"), q.Get("scope_key"), q.Get("iso_week"), q.Get("month_key"))

		snap, err := svc.LatestSnapshot(r.Context(), sc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]*models.Snapshot{"snapshot": snap})
	}
}
