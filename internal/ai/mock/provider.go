package mock

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/kiranshivaraju/storepulse/internal/ai"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req models.ReportRequest) (models.ReportAnalysis, error)
	EnrichFunc  func(ctx context.Context, req models.EnrichmentRequest) (models.Enrichment, error)

	analyzeCalls atomic.Int64
	enrichCalls  atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Analyze(ctx context.Context, req models.ReportRequest) (models.ReportAnalysis, error) {
	m.analyzeCalls.Add(1)
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return models.ReportAnalysis{}, nil
}

func (m *MockProvider) Enrich(ctx context.Context, req models.EnrichmentRequest) (models.Enrichment, error) {
	m.enrichCalls.Add(1)
	if m.EnrichFunc != nil {
		return m.EnrichFunc(ctx, req)
	}
	return models.Enrichment{}, nil
}

// AnalyzeCalls reports how many times Analyze was invoked.
func (m *MockProvider) AnalyzeCalls() int { return int(m.analyzeCalls.Load()) }

// EnrichCalls reports how many times Enrich was invoked.
func (m *MockProvider) EnrichCalls() int { return int(m.enrichCalls.Load()) }

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, req models.ReportRequest) (models.ReportAnalysis, error) {
			body, _ := json.Marshal(map[string]any{
				"summary":       "Simulated report from mock provider",
				"rows_analyzed": req.RowCount,
				"themes":        []map[string]any{{"theme": "staffing", "count": req.RowCount}},
			})
			return models.ReportAnalysis{JSON: body, Model: "mock-v1"}, nil
		},
		EnrichFunc: func(_ context.Context, _ models.EnrichmentRequest) (models.Enrichment, error) {
			return models.Enrichment{Mood: "neutral", Themes: []string{"staffing"}, Model: "mock-v1"}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.ReportRequest) (models.ReportAnalysis, error) {
			return models.ReportAnalysis{}, err
		},
		EnrichFunc: func(_ context.Context, _ models.EnrichmentRequest) (models.Enrichment, error) {
			return models.Enrichment{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AnalyzeFunc: func(ctx context.Context, _ models.ReportRequest) (models.ReportAnalysis, error) {
			<-ctx.Done()
			return models.ReportAnalysis{}, ai.ErrInferenceTimeout
		},
		EnrichFunc: func(ctx context.Context, _ models.EnrichmentRequest) (models.Enrichment, error) {
			<-ctx.Done()
			return models.Enrichment{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
