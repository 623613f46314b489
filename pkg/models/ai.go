// Package models contains shared data models used across the storepulse codebase.
package models

import (
	"context"
	"encoding/json"
)

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly — always inject this interface.
type AIProvider interface {
	// Analyze turns a bounded bundle of feedback rows into an executive report.
	Analyze(ctx context.Context, req ReportRequest) (ReportAnalysis, error)
	// Enrich tags a single submission with an overall mood and themes.
	Enrich(ctx context.Context, req EnrichmentRequest) (Enrichment, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// ReportRequest is the input to a report analysis. Payload is the serialized
// row bundle; RowCount is how many rows it contains.
type ReportRequest struct {
	ScopeType string
	ScopeKey  string
	ISOWeek   string
	MonthKey  string
	RowCount  int
	Payload   json.RawMessage
}

// ReportAnalysis is the provider's structured output, kept verbatim.
type ReportAnalysis struct {
	JSON  json.RawMessage
	Model string
}

// EnrichmentRequest carries the already-truncated text of one submission.
type EnrichmentRequest struct {
	StoreID string
	Text    string
}

// Enrichment is the provider's tagging of one submission.
type Enrichment struct {
	Mood   string   `json:"overall_mood"`
	Themes []string `json:"themes"`
	Model  string   `json:"-"`
}
