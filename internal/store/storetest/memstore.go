// Package storetest provides an in-memory store.Store for unit tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/kiranshivaraju/storepulse/pkg/scope"
)

// MemStore keeps every table in maps guarded by one mutex. It applies the
// same status guards as PostgresStore so service tests exercise real rules.
type MemStore struct {
	mu        sync.Mutex
	keys      map[uuid.UUID]*models.APIKey
	jobs      map[uuid.UUID]*models.Job
	snapshots []*models.Snapshot
	feedback  map[uuid.UUID]*models.Feedback
	byIdemKey map[string]uuid.UUID

	// PingErr, when set, is returned by Ping.
	PingErr error
	// Now supplies timestamps; defaults to time.Now.
	Now func() time.Time
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		keys:      map[uuid.UUID]*models.APIKey{},
		jobs:      map[uuid.UUID]*models.Job{},
		feedback:  map[uuid.UUID]*models.Feedback{},
		byIdemKey: map[string]uuid.UUID{},
	}
}

func (m *MemStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *MemStore) Ping(ctx context.Context) error { return m.PingErr }

func (m *MemStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		t := m.now()
		k.LastUsedAt = &t
	}
	return nil
}

func (m *MemStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Name == key.Name {
			return store.ErrDuplicateKey
		}
	}
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *MemStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	t := m.now()
	k.DeletedAt = &t
	return nil
}

func (m *MemStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	m.jobs[job.ID] = &c
	return nil
}

func (m *MemStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (m *MemStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Job{}
	for _, j := range m.jobs {
		if filter.Status == "" || j.Status == filter.Status {
			c := *j
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].CreatedAt.Before(out[i].CreatedAt) })
	if limit := store.NormalizeLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *models.Job
	for _, j := range m.jobs {
		if j.Status != models.JobStatusQueued {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID.String() < next.ID.String()) {
			next = j
		}
	}
	if next == nil {
		return nil, store.ErrNotFound
	}
	t := m.now()
	next.Status = models.JobStatusRunning
	next.StartedAt = &t
	c := *next
	return &c, nil
}

func (m *MemStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	reason := store.ApplyJobUpdate(opts...)
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !models.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrJobNotActive, j.Status, status)
	}
	t := m.now()
	j.Status = status
	if reason != nil {
		j.Reason = reason
	}
	if status == models.JobStatusRunning {
		j.StartedAt = &t
	}
	if models.IsTerminal(status) {
		j.FinishedAt = &t
	}
	return nil
}

func (m *MemStore) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.CreatedAt = m.now()
	c := *snap
	m.snapshots = append(m.snapshots, &c)
	return nil
}

func (m *MemStore) LatestSnapshot(ctx context.Context, sc scope.Scope) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Snapshot
	for _, s := range m.snapshots {
		if s.ScopeType != string(sc.Type) ||
			!matches(sc.Key, s.ScopeKey) || !matches(sc.ISOWeek, s.ISOWeek) || !matches(sc.MonthKey, s.MonthKey) {
			continue
		}
		if best == nil || !s.CreatedAt.Before(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	c := *best
	return &c, nil
}

// Snapshots returns every stored snapshot in insertion order.
func (m *MemStore) Snapshots() []*models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Snapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

func (m *MemStore) GetFeedbackByIdempotencyKey(ctx context.Context, key string) (*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdemKey[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *m.feedback[id]
	return &c, nil
}

func (m *MemStore) CreateFeedback(ctx context.Context, f *models.Feedback) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byIdemKey[f.IdempotencyKey]; ok {
		return false, nil
	}
	c := *f
	if c.OverallMood == "" {
		c.OverallMood = models.MoodPending
	}
	if len(c.Themes) == 0 {
		c.Themes = models.PendingThemes()
	}
	m.feedback[f.ID] = &c
	m.byIdemKey[f.IdempotencyKey] = f.ID
	return true, nil
}

func (m *MemStore) ListFeedbackForScope(ctx context.Context, sc scope.Scope, limit int) ([]*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Feedback
	for _, f := range m.feedback {
		switch sc.Type {
		case scope.Region:
			if sc.Key != nil && f.RegionCode != *sc.Key {
				continue
			}
		case scope.Store:
			if sc.Key != nil && f.StoreID != *sc.Key {
				continue
			}
		}
		if !matches(sc.ISOWeek, f.ISOWeek) || !matches(sc.MonthKey, f.MonthKey) {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].CreatedAt.Before(out[i].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ApplyEnrichment(ctx context.Context, id uuid.UUID, mood string, themes []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedback[id]
	if !ok || f.OverallMood != models.MoodPending {
		return false, nil
	}
	t := m.now()
	f.OverallMood = mood
	f.Themes = append([]string(nil), themes...)
	f.EnrichedAt = &t
	return true, nil
}

// matches treats a nil filter as a wildcard.
func matches(filter, value *string) bool {
	if filter == nil {
		return true
	}
	return value != nil && *value == *filter
}
