package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/storepulse/internal/ai/llm"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

const (
	apiVersion = "2023-06-01"
	maxTokens  = 4096
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	*llm.Provider
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{llm.NewProvider("anthropic", &messagesClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    llm.NewHTTPClient(),
	})}
}

type messagesClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *messagesClient) Complete(ctx context.Context, system, user string) (string, string, error) {
	req := messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []message{{Role: "user", Content: user}},
		Temperature: 0.2,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": apiVersion,
	}

	var resp messagesResponse
	url := strings.TrimRight(c.baseURL, "/") + "/v1/messages"
	if err := llm.PostJSON(ctx, c.http, url, headers, req, &resp); err != nil {
		return "", "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", "", fmt.Errorf("%w: empty content", llm.ErrInvalidResponse)
	}
	model := resp.Model
	if model == "" {
		model = c.model
	}
	return text.String(), model, nil
}

var _ models.AIProvider = (*Provider)(nil)
