package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool    *pgxpool.Pool
	filters scope.FilterBuilder
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
		&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Report Jobs ---

const jobColumns = `id, scope_type, scope_key, iso_week, month_key, status, reason, created_by, retry_of, created_at, started_at, finished_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ScopeType, &j.ScopeKey, &j.ISOWeek, &j.MonthKey, &j.Status,
		&j.Reason, &j.CreatedBy, &j.RetryOf, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO report_jobs (id, scope_type, scope_key, iso_week, month_key, status, created_by, retry_of, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.ScopeType, job.ScopeKey, job.ISOWeek, job.MonthKey, job.Status,
		job.CreatedBy, job.RetryOf, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM report_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM report_jobs`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, NormalizeLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ClaimNextJob picks the oldest queued job and marks it running in one
// statement. SKIP LOCKED lets concurrent workers claim different jobs
// instead of blocking on the same row.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE report_jobs SET status = 'running', started_at = NOW()
		 WHERE id = (
		     SELECT id FROM report_jobs
		     WHERE status = 'queued'
		     ORDER BY created_at, id
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 ) AND status = 'queued'
		 RETURNING `+jobColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

// UpdateJobStatus moves a job to status if its current status allows it.
// The check and the write happen in one guarded UPDATE, so a job that
// reached a terminal state concurrently is never overwritten.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	reason := ApplyJobUpdate(opts...)

	from := models.SourcesFor(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: no transition into %s", ErrJobNotActive, status)
	}

	query := `UPDATE report_jobs SET status = $2, reason = COALESCE($3, reason)`
	switch status {
	case models.JobStatusRunning:
		query += `, started_at = NOW()`
	default:
		if models.IsTerminal(status) {
			query += `, finished_at = NOW()`
		}
	}
	query += ` WHERE id = $1 AND status = ANY($4)`

	tag, err := s.pool.Exec(ctx, query, id, status, reason, from)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM report_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrJobNotActive, current, status)
}

// --- Snapshots ---

const snapshotColumns = `id, scope_type, scope_key, iso_week, month_key, analysis_json, rows_used, gen_model, gen_ms, synthetic, produced_by_job_id, created_at`

// CreateSnapshot inserts snap. created_at is taken from the database clock
// and written back to snap, so LatestSnapshot orders by one clock no matter
// which worker host produced the row.
func (s *PostgresStore) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO report_snapshots (id, scope_type, scope_key, iso_week, month_key, analysis_json,
		   rows_used, gen_model, gen_ms, synthetic, produced_by_job_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		snap.ID, snap.ScopeType, snap.ScopeKey, snap.ISOWeek, snap.MonthKey,
		[]byte(snap.AnalysisJSON), snap.RowsUsed, snap.GenModel, snap.GenMS,
		snap.Synthetic, snap.ProducedByJobID).Scan(&snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot matching sc. Nil window
// fields on sc match snapshots for any window.
func (s *PostgresStore) LatestSnapshot(ctx context.Context, sc scope.Scope) (*models.Snapshot, error) {
	where := s.filters.SnapshotFilter(sc, 1)
	query := `SELECT ` + snapshotColumns + ` FROM report_snapshots WHERE ` + where.SQL +
		` ORDER BY created_at DESC, id DESC LIMIT 1`

	var snap models.Snapshot
	var analysis []byte
	err := s.pool.QueryRow(ctx, query, where.Args...).Scan(
		&snap.ID, &snap.ScopeType, &snap.ScopeKey, &snap.ISOWeek, &snap.MonthKey,
		&analysis, &snap.RowsUsed, &snap.GenModel, &snap.GenMS,
		&snap.Synthetic, &snap.ProducedByJobID, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.AnalysisJSON = analysis
	return &snap, nil
}

// --- Feedback ---

const feedbackColumns = `id, idempotency_key, store_id, region_code, manager_name, iso_week, month_key,
	top_positive, top_negative, positive_impact::float8, negative_impact::float8, notes,
	overall_mood, themes, enriched_at, created_at`

func scanFeedback(row pgx.Row) (*models.Feedback, error) {
	var f models.Feedback
	err := row.Scan(&f.ID, &f.IdempotencyKey, &f.StoreID, &f.RegionCode, &f.ManagerName,
		&f.ISOWeek, &f.MonthKey, &f.TopPositive, &f.TopNegative, &f.PositiveImpact,
		&f.NegativeImpact, &f.Notes, &f.OverallMood, &f.Themes, &f.EnrichedAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetFeedbackByIdempotencyKey(ctx context.Context, key string) (*models.Feedback, error) {
	f, err := scanFeedback(s.pool.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_submissions WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feedback by idempotency key: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) CreateFeedback(ctx context.Context, f *models.Feedback) (bool, error) {
	mood := f.OverallMood
	if mood == "" {
		mood = models.MoodPending
	}
	themes := f.Themes
	if len(themes) == 0 {
		themes = models.PendingThemes()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO feedback_submissions (id, idempotency_key, store_id, region_code, manager_name,
		     iso_week, month_key, top_positive, top_negative, positive_impact, negative_impact,
		     notes, overall_mood, themes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::float8, $11::float8, $12, $13, $14, $15)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		f.ID, f.IdempotencyKey, f.StoreID, f.RegionCode, f.ManagerName, f.ISOWeek, f.MonthKey,
		f.TopPositive, f.TopNegative, f.PositiveImpact, f.NegativeImpact, f.Notes,
		mood, themes, f.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create feedback: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListFeedbackForScope returns the newest rows matching sc, at most limit.
func (s *PostgresStore) ListFeedbackForScope(ctx context.Context, sc scope.Scope, limit int) ([]*models.Feedback, error) {
	where := s.filters.FeedbackFilter(sc, 1)
	query := fmt.Sprintf(`SELECT %s FROM feedback_submissions WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		feedbackColumns, where.SQL, where.NextArg)
	args := append(where.Args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []*models.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyEnrichment(ctx context.Context, id uuid.UUID, mood string, themes []string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feedback_submissions SET overall_mood = $2, themes = $3, enriched_at = $4
		 WHERE id = $1 AND overall_mood = 'pending'`,
		id, mood, themes, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("apply enrichment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
