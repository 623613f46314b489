package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrJobNotActive is returned when a status change targets a job whose
// current status does not allow it, typically because it is already terminal.
var ErrJobNotActive = errors.New("job is not in a state that allows this transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	// ClaimNextJob atomically moves the oldest queued job to running.
	// It returns ErrNotFound when the queue is empty.
	ClaimNextJob(ctx context.Context) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	// CreateSnapshot inserts snap, stamping CreatedAt from the store's clock.
	CreateSnapshot(ctx context.Context, snap *models.Snapshot) error
	LatestSnapshot(ctx context.Context, s scope.Scope) (*models.Snapshot, error)

	GetFeedbackByIdempotencyKey(ctx context.Context, key string) (*models.Feedback, error)
	// CreateFeedback inserts f unless a row with the same idempotency key
	// exists. The bool reports whether a row was inserted.
	CreateFeedback(ctx context.Context, f *models.Feedback) (bool, error)
	ListFeedbackForScope(ctx context.Context, s scope.Scope, limit int) ([]*models.Feedback, error)
	// ApplyEnrichment replaces the pending sentinels on a feedback row. It
	// returns false if the row was already enriched or does not exist.
	ApplyEnrichment(ctx context.Context, id uuid.UUID, mood string, themes []string) (bool, error)
}

// JobFilter narrows ListJobs. Zero values mean no filter.
type JobFilter struct {
	Status string
	Limit  int
}

type jobUpdateParams struct {
	Reason *string
}

type JobUpdateOption func(*jobUpdateParams)

// WithReason records a short note on the job alongside the status change.
func WithReason(reason string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Reason = &reason
	}
}

// ApplyJobUpdate resolves opts into the fields they set.
// Exported for alternative Store implementations.
func ApplyJobUpdate(opts ...JobUpdateOption) (reason *string) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params.Reason
}

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 100
)

// NormalizeLimit clamps a list limit into [1, 100], defaulting to 20.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultJobListLimit
	}
	if limit > maxJobListLimit {
		return maxJobListLimit
	}
	return limit
}
