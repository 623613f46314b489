package openai

import (
	"github.com/kiranshivaraju/storepulse/internal/ai/llm"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// Provider implements models.AIProvider using OpenAI chat completions.
type Provider struct {
	*llm.Provider
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{llm.NewProvider("openai", &llm.ChatClient{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		HTTP:    llm.NewHTTPClient(),
	})}
}

var _ models.AIProvider = (*Provider)(nil)
