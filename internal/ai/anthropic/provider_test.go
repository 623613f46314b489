package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/storepulse/internal/ai/llm"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Enrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var body messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.System)
		assert.Equal(t, maxTokens, body.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "claude-test",
			"content": []map[string]string{
				{"type": "text", "text": `{"overall_mood":"negative","themes":["Stockouts"]}`},
			},
		})
	}))
	defer srv.Close()

	p := NewProvider(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "claude-x"})
	assert.Equal(t, "anthropic", p.Name())

	e, err := p.Enrich(context.Background(), models.EnrichmentRequest{StoreID: "S001", Text: "Top negative: empty shelves"})
	require.NoError(t, err)
	assert.Equal(t, "negative", e.Mood)
	assert.Equal(t, []string{"stockouts"}, e.Themes)
	assert.Equal(t, "claude-test", e.Model)
}

func TestProvider_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	p := NewProvider(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := p.Analyze(context.Background(), models.ReportRequest{ScopeType: "network"})
	assert.ErrorIs(t, err, llm.ErrInvalidResponse)
}

func TestProvider_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"authentication_error"}}`))
	}))
	defer srv.Close()

	p := NewProvider(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	_, err := p.Analyze(context.Background(), models.ReportRequest{ScopeType: "network"})
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
}
