// Package report owns the report-generation pipeline: enqueueing and
// polling jobs, reading snapshots, and the worker that turns one queued job
// into one snapshot.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/internal/bundle"
	"github.com/kiranshivaraju/storepulse/internal/cache"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
)

var (
	ErrInvalidScope  = errors.New("invalid scope")
	ErrInvalidRetry  = errors.New("retry_of must reference a failed job")
	ErrInvalidStatus = errors.New("invalid job status")
)

// DefaultCreatedBy is recorded when neither the request nor the API key names a caller.
const DefaultCreatedBy = "system"

const maxCreatedByLen = 128

// EnqueueParams is a validated-on-use request for a new report job.
type EnqueueParams struct {
	ScopeType string
	ScopeKey  string
	ISOWeek   string
	MonthKey  string
	CreatedBy string
	RetryOf   *uuid.UUID
}

// Service implements job submission, polling, cancellation and snapshot reads.
type Service struct {
	store store.Store
	cache cache.Cache
	now   func() time.Time
}

func NewService(st store.Store, ca cache.Cache) *Service {
	return &Service{store: st, cache: ca, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue validates the scope and inserts a queued job. It never waits for
// processing and does not deduplicate identical requests.
func (s *Service) Enqueue(ctx context.Context, p EnqueueParams) (*models.Job, error) {
	var retryOf *models.Job
	if p.RetryOf != nil {
		prev, err := s.store.GetJob(ctx, *p.RetryOf)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s not found", ErrInvalidRetry, *p.RetryOf)
		}
		if err != nil {
			return nil, fmt.Errorf("loading retried job: %w", err)
		}
		if prev.Status != models.JobStatusFailed {
			return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidRetry, prev.ID, prev.Status)
		}
		retryOf = prev
	}

	// A retry with no scope of its own repeats the failed job's scope.
	if retryOf != nil && strings.TrimSpace(p.ScopeType) == "" {
		p.ScopeType = retryOf.ScopeType
		p.ScopeKey = deref(retryOf.ScopeKey)
		p.ISOWeek = deref(retryOf.ISOWeek)
		p.MonthKey = deref(retryOf.MonthKey)
	}

	sc := scope.New(p.ScopeType, p.ScopeKey, p.ISOWeek, p.MonthKey)
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}

	createdBy := strings.TrimSpace(p.CreatedBy)
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}
	createdBy = bundle.Truncate(createdBy, maxCreatedByLen)

	job := &models.Job{
		ID:        uuid.New(),
		ScopeType: string(sc.Type),
		ScopeKey:  sc.Key,
		ISOWeek:   sc.ISOWeek,
		MonthKey:  sc.MonthKey,
		Status:    models.JobStatusQueued,
		CreatedBy: createdBy,
		RetryOf:   p.RetryOf,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	slog.Info("report job enqueued", "job_id", job.ID, "scope", sc.String(), "created_by", createdBy)
	return job, nil
}

// Poll returns the job verbatim, or nil if no job has that id.
// Terminal jobs are served from the cache once seen.
func (s *Service) Poll(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	key := cache.TerminalJobKey(id)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var job models.Job
		if err := json.Unmarshal(data, &job); err == nil {
			return &job, nil
		}
	}

	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}

	if models.IsTerminal(job.Status) {
		if data, err := json.Marshal(job); err == nil {
			if err := s.cache.Set(ctx, key, data, cache.TerminalJobTTL); err != nil {
				slog.Debug("caching terminal job failed", "job_id", id, "error", err)
			}
		}
	}
	return job, nil
}

// Cancel moves a queued or running job to canceled with an operator note.
// Canceling a terminal job fails with store.ErrJobNotActive and changes nothing.
// A running job's in-flight inference is not interrupted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, note string) (*models.Job, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		note = "canceled by operator"
	}
	if err := s.store.UpdateJobStatus(ctx, id, models.JobStatusCanceled, store.WithReason(note)); err != nil {
		return nil, err
	}
	slog.Info("report job canceled", "job_id", id, "note", note)

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reloading canceled job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	if status != "" && !models.IsValidJobStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	jobs, err := s.store.ListJobs(ctx, store.JobFilter{Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// LatestSnapshot returns the newest snapshot for the scope, or nil when none
// exists yet. A missing snapshot is a normal state, not an error.
func (s *Service) LatestSnapshot(ctx context.Context, sc scope.Scope) (*models.Snapshot, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	snap, err := s.store.LatestSnapshot(ctx, sc)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return snap, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
