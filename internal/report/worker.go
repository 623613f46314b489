package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/internal/ai"
	"github.com/kiranshivaraju/storepulse/internal/bundle"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
)

// WorkerConfig bounds a single worker invocation.
type WorkerConfig struct {
	MaxRows          int
	MaxFieldBytes    int
	InferenceTimeout time.Duration
	// PlaceholderOnFailure writes a synthetic snapshot when the AI provider
	// fails, and finishes the job as succeeded. Demo deployments only.
	PlaceholderOnFailure bool
}

// Outcome is what one RunOnce call did.
type Outcome struct {
	Processed int        `json:"processed"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	GenMS     *int64     `json:"gen_ms,omitempty"`
}

// Worker claims and processes at most one job per RunOnce call. It holds no
// state between calls and is safe to run from several processes at once.
type Worker struct {
	store    store.Store
	provider models.AIProvider
	cfg      WorkerConfig
	now      func() time.Time
}

func NewWorker(st store.Store, provider models.AIProvider, cfg WorkerConfig) *Worker {
	return &Worker{store: st, provider: provider, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// result is the terminal state the worker wants to record for a job.
type result struct {
	status string
	reason string
	genMS  *int64
}

// RunOnce claims the oldest queued job and drives it to a terminal state.
// With an empty queue it returns Processed 0 and touches nothing.
func (w *Worker) RunOnce(ctx context.Context) (Outcome, error) {
	job, err := w.store.ClaimNextJob(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Processed: 0}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("claiming job: %w", err)
	}

	slog.Info("report job claimed", "job_id", job.ID, "scope_type", job.ScopeType)

	res := w.safeProcess(ctx, job)
	out := Outcome{Processed: 1, JobID: &job.ID, Status: res.status, GenMS: res.genMS}

	// Finish without the caller's deadline: the claim is already durable and
	// leaving the job running would strand it.
	finishCtx := context.WithoutCancel(ctx)
	err = w.store.UpdateJobStatus(finishCtx, job.ID, res.status, store.WithReason(res.reason))
	switch {
	case errors.Is(err, store.ErrJobNotActive):
		// Canceled by an operator while the provider was working.
		slog.Warn("report job left running state before finishing",
			"job_id", job.ID, "wanted_status", res.status, "error", err)
		if current, gerr := w.store.GetJob(finishCtx, job.ID); gerr == nil {
			out.Status = current.Status
		}
		return out, nil
	case err != nil:
		return out, fmt.Errorf("finishing job %s: %w", job.ID, err)
	}

	if res.status == models.JobStatusSucceeded {
		slog.Info("report job succeeded", "job_id", job.ID, "reason", res.reason, "gen_ms", res.genMS)
	} else {
		slog.Error("report job failed", "job_id", job.ID, "reason", res.reason)
	}
	return out, nil
}

// safeProcess runs process and turns a panic into a failed result.
func (w *Worker) safeProcess(ctx context.Context, job *models.Job) (res result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in report worker", "error", r, "job_id", job.ID)
			res = result{status: models.JobStatusFailed, reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job *models.Job) result {
	sc := scope.Scope{Type: scope.Type(job.ScopeType), Key: job.ScopeKey, ISOWeek: job.ISOWeek, MonthKey: job.MonthKey}

	rows, err := w.store.ListFeedbackForScope(ctx, sc, w.cfg.MaxRows)
	if err != nil {
		return failed(fmt.Errorf("gathering feedback: %w", err))
	}
	b := bundle.Build(rows, w.cfg.MaxRows, w.cfg.MaxFieldBytes)
	payload, err := b.JSON()
	if err != nil {
		return failed(err)
	}

	slog.Info("report bundle built", "job_id", job.ID, "rows_used", b.Header.RowCount)

	analysis, genMS, err := w.analyze(ctx, job, sc, b.Header.RowCount, payload)
	if err != nil {
		if w.cfg.PlaceholderOnFailure {
			return w.placeholder(ctx, job, b.Header.RowCount, genMS, err)
		}
		res := failed(err)
		res.genMS = &genMS
		return res
	}

	snap := w.snapshot(job, analysis.JSON, b.Header.RowCount, analysis.Model, genMS)
	if err := w.store.CreateSnapshot(ctx, snap); err != nil {
		return failed(fmt.Errorf("writing snapshot: %w", err))
	}
	return result{status: models.JobStatusSucceeded, reason: models.ReasonOK, genMS: &genMS}
}

// analyze calls the provider under the inference timeout and checks that it
// returned a JSON object.
func (w *Worker) analyze(ctx context.Context, job *models.Job, sc scope.Scope, rowCount int, payload json.RawMessage) (models.ReportAnalysis, int64, error) {
	actx, cancel := context.WithTimeout(ctx, w.cfg.InferenceTimeout)
	defer cancel()

	start := w.now()
	analysis, err := w.provider.Analyze(actx, models.ReportRequest{
		ScopeType: job.ScopeType,
		ScopeKey:  sc.KeyOrEmpty(),
		ISOWeek:   deref(sc.ISOWeek),
		MonthKey:  deref(sc.MonthKey),
		RowCount:  rowCount,
		Payload:   payload,
	})
	genMS := w.now().Sub(start).Milliseconds()

	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, ai.ErrInferenceTimeout) {
			err = fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
		}
		return models.ReportAnalysis{}, genMS, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(analysis.JSON, &obj); err != nil || obj == nil {
		return models.ReportAnalysis{}, genMS, fmt.Errorf("%w: analysis is not a JSON object", ai.ErrInvalidResponse)
	}
	if analysis.Model == "" {
		analysis.Model = w.provider.Name()
	}
	return analysis, genMS, nil
}

// placeholder records a synthetic snapshot after a provider failure. The
// snapshot is flagged so dashboards can tell it apart from a real analysis.
func (w *Worker) placeholder(ctx context.Context, job *models.Job, rowCount int, genMS int64, cause error) result {
	body, err := json.Marshal(map[string]any{
		"summary":   "Analysis unavailable; showing placeholder.",
		"synthetic": true,
		"error":     cause.Error(),
	})
	if err != nil {
		return failed(cause)
	}
	snap := w.snapshot(job, body, rowCount, "placeholder", genMS)
	snap.Synthetic = true
	if err := w.store.CreateSnapshot(ctx, snap); err != nil {
		return failed(fmt.Errorf("%v; writing placeholder snapshot: %w", cause, err))
	}
	slog.Warn("report job used synthetic placeholder", "job_id", job.ID, "error", cause)
	return result{
		status: models.JobStatusSucceeded,
		reason: fmt.Sprintf("%s (synthetic placeholder: %v)", models.ReasonOK, cause),
		genMS:  &genMS,
	}
}

func (w *Worker) snapshot(job *models.Job, analysis json.RawMessage, rowCount int, model string, genMS int64) *models.Snapshot {
	jobID := job.ID
	return &models.Snapshot{
		ID:              uuid.New(),
		ScopeType:       job.ScopeType,
		ScopeKey:        job.ScopeKey,
		ISOWeek:         job.ISOWeek,
		MonthKey:        job.MonthKey,
		AnalysisJSON:    analysis,
		RowsUsed:        rowCount,
		GenModel:        model,
		GenMS:           genMS,
		ProducedByJobID: &jobID,
	}
}

func failed(err error) result {
	return result{status: models.JobStatusFailed, reason: err.Error()}
}
