// Package llm holds what every AI provider shares: error values, prompts,
// response parsing and an OpenAI-compatible chat transport.
package llm

import "errors"

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
