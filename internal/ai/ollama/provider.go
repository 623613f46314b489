package ollama

import (
	"github.com/kiranshivaraju/storepulse/internal/ai/llm"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// Provider implements models.AIProvider using Ollama's OpenAI-compatible API.
type Provider struct {
	*llm.Provider
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{llm.NewProvider("ollama", &llm.ChatClient{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		HTTP:    llm.NewHTTPClient(),
	})}
}

var _ models.AIProvider = (*Provider)(nil)
