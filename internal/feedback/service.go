// Package feedback accepts store manager submissions exactly once per
// idempotency key and tags them with a mood and themes in the background.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/internal/bundle"
	"github.com/kiranshivaraju/storepulse/internal/cache"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var ErrInvalidSubmission = errors.New("invalid feedback submission")

const (
	defaultTimeout    = 10 * time.Second
	maxFieldBytes     = 500
	maxPromptBytes    = 2000
	maxIdentifierLen  = 64
	maxIdempotencyLen = 128

	// MaxImpact is the largest amount a NUMERIC(12,2) impact column holds.
	MaxImpact = 9_999_999_999.99
)

// Submission is the parsed form body.
type Submission struct {
	IdempotencyKey string
	StoreID        string
	RegionCode     string
	ManagerName    string
	ISOWeek        string
	MonthKey       string
	TopPositive    string
	TopNegative    string
	PositiveImpact float64
	NegativeImpact float64
	Notes          string
}

// Result is what the caller learns synchronously.
type Result struct {
	ID        uuid.UUID
	Duplicate bool
	// Enriching reports whether a background enrichment was started.
	Enriching bool
}

// Config bounds background enrichment.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	RatePerSec    float64
}

// Service persists submissions and schedules best-effort enrichment.
type Service struct {
	store    store.Store
	cache    cache.Cache
	provider models.AIProvider
	timeout  time.Duration
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewService(st store.Store, ca cache.Cache, provider models.AIProvider, cfg Config) *Service {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Service{
		store:    st,
		cache:    ca,
		provider: provider,
		timeout:  timeout,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		limiter:  rate.NewLimiter(limit, maxConcurrent),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores sub unless its idempotency key was seen before. The
// response never waits on the AI provider.
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	if err := normalize(&sub); err != nil {
		return Result{}, err
	}

	idemKey := cache.IdempotencyKey(sub.IdempotencyKey)
	if _, hit, err := s.cache.Get(ctx, idemKey); err != nil {
		slog.Debug("idempotency cache lookup failed", "error", err)
	} else if hit {
		return Result{Duplicate: true}, nil
	}

	existing, err := s.store.GetFeedbackByIdempotencyKey(ctx, sub.IdempotencyKey)
	switch {
	case err == nil:
		s.remember(ctx, idemKey)
		return Result{ID: existing.ID, Duplicate: true}, nil
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, fmt.Errorf("looking up submission: %w", err)
	}

	f := &models.Feedback{
		ID:             uuid.New(),
		IdempotencyKey: sub.IdempotencyKey,
		StoreID:        sub.StoreID,
		RegionCode:     sub.RegionCode,
		ManagerName:    sub.ManagerName,
		ISOWeek:        optional(sub.ISOWeek),
		MonthKey:       optional(sub.MonthKey),
		TopPositive:    sub.TopPositive,
		TopNegative:    sub.TopNegative,
		PositiveImpact: sub.PositiveImpact,
		NegativeImpact: sub.NegativeImpact,
		Notes:          sub.Notes,
		OverallMood:    models.MoodPending,
		Themes:         models.PendingThemes(),
		CreatedAt:      s.now(),
	}
	inserted, err := s.store.CreateFeedback(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("storing submission: %w", err)
	}
	s.remember(ctx, idemKey)
	if !inserted {
		// Lost a race with a concurrent submit of the same key.
		return Result{Duplicate: true}, nil
	}

	slog.Info("feedback stored", "feedback_id", f.ID, "store_id", f.StoreID)

	res := Result{ID: f.ID}
	if f.HasContent() {
		res.Enriching = s.scheduleEnrichment(f)
	}
	return res, nil
}

// Wait blocks until in-flight enrichment has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) remember(ctx context.Context, key string) {
	if err := s.cache.Set(ctx, key, []byte("1"), cache.IdempotencyTTL); err != nil {
		slog.Debug("idempotency cache write failed", "error", err)
	}
}

// scheduleEnrichment starts the background task if a slot is free. When all
// slots are busy the submission simply keeps its pending sentinels.
func (s *Service) scheduleEnrichment(f *models.Feedback) bool {
	if !s.sem.TryAcquire(1) {
		slog.Warn("enrichment skipped: too many in flight", "feedback_id", f.ID)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.enrich(f)
	}()
	return true
}

type enrichOutcome struct {
	e   models.Enrichment
	err error
}

// enrich races the provider against the enrichment deadline and applies the
// result at most once.
func (s *Service) enrich(f *models.Feedback) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in enrichment", "error", r, "feedback_id", f.ID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		slog.Warn("enrichment abandoned waiting for rate limit", "feedback_id", f.ID, "error", err)
		return
	}

	req := models.EnrichmentRequest{
		StoreID: f.StoreID,
		Text:    bundle.EnrichmentText(f, maxFieldBytes, maxPromptBytes),
	}
	done := make(chan enrichOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- enrichOutcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		e, err := s.provider.Enrich(ctx, req)
		done <- enrichOutcome{e: e, err: err}
	}()

	var out enrichOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		slog.Warn("enrichment timed out", "feedback_id", f.ID, "timeout", s.timeout)
		return
	}
	if out.err != nil {
		slog.Warn("enrichment failed", "feedback_id", f.ID, "error", out.err)
		return
	}
	if out.e.Mood == "" || out.e.Mood == models.MoodPending {
		slog.Warn("enrichment returned no mood", "feedback_id", f.ID)
		return
	}

	themes := out.e.Themes
	if themes == nil {
		themes = []string{}
	}
	applied, err := s.store.ApplyEnrichment(context.Background(), f.ID, out.e.Mood, themes)
	if err != nil {
		slog.Warn("storing enrichment failed", "feedback_id", f.ID, "error", err)
		return
	}
	if applied {
		slog.Info("feedback enriched", "feedback_id", f.ID, "mood", out.e.Mood, "themes", themes)
	}
}

// normalize trims fields, validates them and derives the idempotency key
// when the caller omitted it.
func normalize(sub *Submission) error {
	for _, p := range []*string{&sub.IdempotencyKey, &sub.StoreID, &sub.RegionCode, &sub.ManagerName,
		&sub.ISOWeek, &sub.MonthKey, &sub.TopPositive, &sub.TopNegative, &sub.Notes} {
		*p = strings.TrimSpace(*p)
	}
	sub.RegionCode = strings.ToUpper(sub.RegionCode)

	if sub.StoreID == "" {
		return fmt.Errorf("%w: store_id is required", ErrInvalidSubmission)
	}
	// A submission belongs to one store and one time window.
	sc := scope.New(string(scope.Store), sub.StoreID, sub.ISOWeek, sub.MonthKey)
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if len(sub.RegionCode) > maxIdentifierLen {
		return fmt.Errorf("%w: region_code must be at most %d characters", ErrInvalidSubmission, maxIdentifierLen)
	}
	if len(sub.IdempotencyKey) > maxIdempotencyLen {
		return fmt.Errorf("%w: idempotency_key must be at most %d characters", ErrInvalidSubmission, maxIdempotencyLen)
	}
	if err := checkImpact("positive_impact", sub.PositiveImpact); err != nil {
		return err
	}
	if err := checkImpact("negative_impact", sub.NegativeImpact); err != nil {
		return err
	}
	if sub.IdempotencyKey == "" {
		sub.IdempotencyKey = bundle.IdempotencyKey(sub.StoreID, sub.ISOWeek, sub.MonthKey)
	}
	return nil
}

func checkImpact(field string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Errorf("%w: %s must be a finite number", ErrInvalidSubmission, field)
	case v < 0:
		return fmt.Errorf("%w: impact values must not be negative", ErrInvalidSubmission)
	case v > MaxImpact:
		return fmt.Errorf("%w: %s must be at most %.2f", ErrInvalidSubmission, field, MaxImpact)
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
