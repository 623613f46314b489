package vllm

import (
	"github.com/kiranshivaraju/storepulse/internal/ai/llm"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// Provider implements models.AIProvider using a vLLM server.
type Provider struct {
	*llm.Provider
}

func NewProvider(cfg config.VLLMConfig) *Provider {
	return &Provider{llm.NewProvider("vllm", &llm.ChatClient{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		HTTP:    llm.NewHTTPClient(),
	})}
}

var _ models.AIProvider = (*Provider)(nil)
