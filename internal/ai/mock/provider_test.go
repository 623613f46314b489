package mock_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/storepulse/internal/ai"
	"github.com/kiranshivaraju/storepulse/internal/ai/mock"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.ReportRequest {
	return models.ReportRequest{
		ScopeType: "region",
		ScopeKey:  "AKL",
		ISOWeek:   "FY26-W11",
		RowCount:  3,
		Payload:   json.RawMessage(`{"header":{"row_count":3},"rows":[]}`),
	}
}

func sampleEnrichment() models.EnrichmentRequest {
	return models.EnrichmentRequest{StoreID: "S001", Text: "Top negative: stockouts"}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
}

func TestNewMockProvider_Analyze(t *testing.T) {
	p := mock.NewMockProvider()
	result, err := p.Analyze(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Equal(t, "mock-v1", result.Model)

	var body map[string]any
	require.NoError(t, json.Unmarshal(result.JSON, &body))
	assert.NotEmpty(t, body["summary"])
	assert.EqualValues(t, 3, body["rows_analyzed"])
	assert.Equal(t, 1, p.AnalyzeCalls())
}

func TestNewMockProvider_Enrich(t *testing.T) {
	p := mock.NewMockProvider()
	e, err := p.Enrich(context.Background(), sampleEnrichment())

	require.NoError(t, err)
	assert.Equal(t, "neutral", e.Mood)
	assert.Equal(t, []string{"staffing"}, e.Themes)
	assert.Equal(t, 1, p.EnrichCalls())
}

// --- NewFailingProvider ---

func TestNewFailingProvider(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	assert.Equal(t, "mock-failing", p.Name())

	_, err := p.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)

	_, err = p.Enrich(context.Background(), sampleEnrichment())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestNewFailingProvider_CustomError(t *testing.T) {
	customErr := errors.New("custom AI error")
	p := mock.NewFailingProvider(customErr)

	_, err := p.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, customErr)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider(t *testing.T) {
	p := mock.NewTimeoutProvider()
	assert.Equal(t, "mock-timeout", p.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Analyze(ctx, sampleRequest())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)

	_, err = p.Enrich(ctx, sampleEnrichment())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

// --- Sentinel errors ---

func TestSentinelErrors(t *testing.T) {
	assert.NotEqual(t, ai.ErrProviderUnavailable, ai.ErrInferenceTimeout)
	assert.NotEqual(t, ai.ErrInferenceTimeout, ai.ErrInvalidResponse)
}

// --- Zero-value MockProvider ---

func TestMockProvider_NilFuncs(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}

	result, err := p.Analyze(context.Background(), sampleRequest())
	assert.NoError(t, err)
	assert.Equal(t, models.ReportAnalysis{}, result)

	e, err := p.Enrich(context.Background(), sampleEnrichment())
	assert.NoError(t, err)
	assert.Equal(t, models.Enrichment{}, e)
}
