package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// Moods accepted after normalisation.
const (
	MoodPositive = "positive"
	MoodNeutral  = "neutral"
	MoodNegative = "negative"
	MoodMixed    = "mixed"
)

const maxThemes = 5

// ExtractJSONObject strips markdown code fences and surrounding prose from
// a model reply and returns the first top-level JSON object in it.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
	}
	candidate := []byte(text[start : end+1])

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(candidate, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, candidate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return compact.Bytes(), nil
}

// ParseEnrichment reads an enrichment reply and normalises it.
func ParseEnrichment(text string) (models.Enrichment, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return models.Enrichment{}, err
	}
	var out struct {
		Mood   string   `json:"overall_mood"`
		Themes []string `json:"themes"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Enrichment{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	mood := NormalizeMood(out.Mood)
	if mood == "" {
		return models.Enrichment{}, fmt.Errorf("%w: unknown mood %q", ErrInvalidResponse, out.Mood)
	}
	return models.Enrichment{Mood: mood, Themes: NormalizeThemes(out.Themes)}, nil
}

// NormalizeMood maps free-form sentiment words to one of the four moods.
// Returns "" when nothing matches.
func NormalizeMood(mood string) string {
	switch strings.ToLower(strings.TrimSpace(mood)) {
	case "positive", "good", "great", "upbeat":
		return MoodPositive
	case "neutral", "ok", "okay", "flat":
		return MoodNeutral
	case "negative", "bad", "poor", "concerned":
		return MoodNegative
	case "mixed":
		return MoodMixed
	}
	return ""
}

// NormalizeThemes lower-cases, trims and dedupes themes, keeping at most five.
// It never returns the pending sentinel.
func NormalizeThemes(themes []string) []string {
	out := make([]string, 0, maxThemes)
	seen := make(map[string]bool)
	for _, th := range themes {
		th = strings.ToLower(strings.TrimSpace(th))
		if th == "" || th == models.ThemePending || seen[th] {
			continue
		}
		seen[th] = true
		out = append(out, th)
		if len(out) == maxThemes {
			break
		}
	}
	return out
}
