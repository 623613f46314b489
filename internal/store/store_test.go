package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storepulse_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func strPtr(s string) *string { return &s }

func newJob(createdAt time.Time, sc scope.Scope) *models.Job {
	return &models.Job{
		ID:        uuid.New(),
		ScopeType: string(sc.Type),
		ScopeKey:  sc.Key,
		ISOWeek:   sc.ISOWeek,
		MonthKey:  sc.MonthKey,
		Status:    models.JobStatusQueued,
		CreatedBy: "test",
		CreatedAt: createdAt,
	}
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "dashboard",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "sp_abcd",
		Scopes:    []string{models.ScopeRead, models.ScopeWrite},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "sp_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"read", "write"}, keys[0].Scopes)

	err = s.CreateAPIKey(ctx, &models.APIKey{
		ID: uuid.New(), Name: "dashboard", KeyHash: "h", KeyPrefix: "sp_zzzz",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestAPIKey_RevokeAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), Name: "cron", KeyHash: "hash", KeyPrefix: "sp_cron",
		Scopes: []string{models.ScopeWorker}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)

	keys, err = s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(time.Now().UTC().Truncate(time.Microsecond), scope.New("region", "AKL", "FY26-W11", ""))
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, "AKL", *got.ScopeKey)
	assert.Nil(t, got.MonthKey)
	assert.Nil(t, got.StartedAt)

	_, err = s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_ClaimIsFIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		j := newJob(base.Add(time.Duration(i)*time.Second), scope.New("network", "", "", ""))
		require.NoError(t, s.CreateJob(ctx, j))
		ids = append(ids, j.ID)
	}

	for _, want := range ids {
		got, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.ID)
		assert.Equal(t, models.JobStatusRunning, got.Status)
		assert.NotNil(t, got.StartedAt)
	}

	_, err := s.ClaimNextJob(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_ConcurrentClaimsNeverShareAJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	base := time.Now().UTC()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, s.CreateJob(ctx, newJob(base.Add(time.Duration(i)*time.Millisecond), scope.New("network", "", "", ""))))
	}

	var mu sync.Mutex
	seen := map[uuid.UUID]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := s.ClaimNextJob(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

func TestJob_UpdateStatusGuards(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(time.Now().UTC(), scope.New("store", "S001", "", ""))
	require.NoError(t, s.CreateJob(ctx, job))

	// queued cannot jump straight to succeeded
	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded)
	assert.ErrorIs(t, err, store.ErrJobNotActive)

	_, err = s.ClaimNextJob(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithReason("inference timeout")))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "inference timeout", *got.Reason)
	assert.NotNil(t, got.FinishedAt)

	// terminal jobs are immutable
	for _, status := range []string{models.JobStatusSucceeded, models.JobStatusCanceled, models.JobStatusRunning} {
		err = s.UpdateJobStatus(ctx, job.ID, status)
		assert.ErrorIs(t, err, store.ErrJobNotActive, status)
	}

	err = s.UpdateJobStatus(ctx, uuid.New(), models.JobStatusCanceled)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_CancelQueued(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(time.Now().UTC(), scope.New("network", "", "", ""))
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCanceled, store.WithReason("duplicate request")))

	_, err := s.ClaimNextJob(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_ListByStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateJob(ctx, newJob(base.Add(time.Duration(i)*time.Second), scope.New("network", "", "", ""))))
	}
	_, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)

	queued, err := s.ListJobs(ctx, store.JobFilter{Status: models.JobStatusQueued})
	require.NoError(t, err)
	assert.Len(t, queued, 2)
	assert.True(t, queued[0].CreatedAt.After(queued[1].CreatedAt))

	all, err := s.ListJobs(ctx, store.JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// --- Snapshot Tests ---

func TestSnapshot_LatestByScope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	mk := func(key string, week string, body string) *models.Snapshot {
		return &models.Snapshot{
			ID: uuid.New(), ScopeType: "region", ScopeKey: strPtr(key), ISOWeek: strPtr(week),
			AnalysisJSON: json.RawMessage(body), RowsUsed: 2, GenModel: "llama3", GenMS: 120,
		}
	}
	require.NoError(t, s.CreateSnapshot(ctx, mk("AKL", "FY26-W10", `{"summary":"old"}`)))
	require.NoError(t, s.CreateSnapshot(ctx, mk("AKL", "FY26-W11", `{"summary":"new"}`)))
	require.NoError(t, s.CreateSnapshot(ctx, mk("WLG", "FY26-W11", `{"summary":"other"}`)))

	got, err := s.LatestSnapshot(ctx, scope.New("region", "AKL", "", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"new"}`, string(got.AnalysisJSON))
	assert.Equal(t, 2, got.RowsUsed)
	assert.False(t, got.Synthetic)

	got, err = s.LatestSnapshot(ctx, scope.New("region", "AKL", "FY26-W10", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"old"}`, string(got.AnalysisJSON))

	_, err = s.LatestSnapshot(ctx, scope.New("store", "S001", "", ""))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshot_CreatedAtFromDatabaseClock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	// A worker whose clock runs a year ahead must not pin "latest".
	skewed := &models.Snapshot{
		ID: uuid.New(), ScopeType: "network", AnalysisJSON: json.RawMessage(`{"summary":"skewed"}`),
		CreatedAt: time.Now().AddDate(1, 0, 0),
	}
	require.NoError(t, s.CreateSnapshot(ctx, skewed))
	assert.WithinDuration(t, time.Now(), skewed.CreatedAt, time.Minute)

	require.NoError(t, s.CreateSnapshot(ctx, &models.Snapshot{
		ID: uuid.New(), ScopeType: "network", AnalysisJSON: json.RawMessage(`{"summary":"later"}`),
	}))

	got, err := s.LatestSnapshot(ctx, scope.New("network", "", "", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"later"}`, string(got.AnalysisJSON))
}

// --- Feedback Tests ---

func TestFeedback_CreateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	f := &models.Feedback{
		ID: uuid.New(), IdempotencyKey: "k1", StoreID: "S001", RegionCode: "AKL",
		ISOWeek: strPtr("FY26-W11"), TopNegative: "stockouts", NegativeImpact: 1250.5,
		CreatedAt: time.Now().UTC(),
	}
	inserted, err := s.CreateFeedback(ctx, f)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *f
	dup.ID = uuid.New()
	inserted, err = s.CreateFeedback(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetFeedbackByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, models.MoodPending, got.OverallMood)
	assert.Equal(t, []string{models.ThemePending}, got.Themes)
	assert.InDelta(t, 1250.5, got.NegativeImpact, 0.001)
}

func TestFeedback_ApplyEnrichmentOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	f := &models.Feedback{ID: uuid.New(), IdempotencyKey: "k2", StoreID: "S002", Notes: "busy week", CreatedAt: time.Now().UTC()}
	_, err := s.CreateFeedback(ctx, f)
	require.NoError(t, err)

	ok, err := s.ApplyEnrichment(ctx, f.ID, "positive", []string{"staffing"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ApplyEnrichment(ctx, f.ID, "negative", []string{"pricing"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetFeedbackByIdempotencyKey(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, "positive", got.OverallMood)
	assert.Equal(t, []string{"staffing"}, got.Themes)
	assert.NotNil(t, got.EnrichedAt)
}

func TestFeedback_ListForScope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	base := time.Now().UTC()

	rows := []struct{ store, region, week string }{
		{"S001", "AKL", "FY26-W11"},
		{"S002", "AKL", "FY26-W11"},
		{"S003", "WLG", "FY26-W11"},
		{"S001", "AKL", "FY26-W10"},
	}
	for i, r := range rows {
		_, err := s.CreateFeedback(ctx, &models.Feedback{
			ID: uuid.New(), IdempotencyKey: uuid.NewString(), StoreID: r.store, RegionCode: r.region,
			ISOWeek: strPtr(r.week), CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	got, err := s.ListFeedbackForScope(ctx, scope.New("region", "AKL", "FY26-W11", ""), 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListFeedbackForScope(ctx, scope.New("store", "S001", "", ""), 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListFeedbackForScope(ctx, scope.New("network", "", "", ""), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "S001", got[0].StoreID)
	assert.Equal(t, "FY26-W10", *got[0].ISOWeek)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	assert.NoError(t, s.Ping(context.Background()))
}
