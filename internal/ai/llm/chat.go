package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ChatClient talks to any server exposing POST /v1/chat/completions.
// Ollama, vLLM and OpenAI all do.
type ChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the reply text and
// the model that produced it.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, string, error) {
	headers := map[string]string{}
	if c.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.APIKey
	}
	req := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var resp chatResponse
	url := strings.TrimRight(c.BaseURL, "/") + "/v1/chat/completions"
	if err := PostJSON(ctx, c.httpClient(), url, headers, req, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	model := resp.Model
	if model == "" {
		model = c.Model
	}
	return resp.Choices[0].Message.Content, model, nil
}

func (c *ChatClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
