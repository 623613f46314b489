package ai

import "github.com/kiranshivaraju/storepulse/internal/ai/llm"

// Provider errors. Every provider wraps one of these.
var (
	ErrProviderUnavailable = llm.ErrProviderUnavailable
	ErrInferenceTimeout    = llm.ErrInferenceTimeout
	ErrInvalidResponse     = llm.ErrInvalidResponse
)
