// Package bundle turns feedback rows into the bounded JSON payload sent to
// the AI provider, and derives the stable keys used to deduplicate submissions.
package bundle

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/storepulse/pkg/models"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// Row is one feedback submission as the provider sees it.
type Row struct {
	StoreID        string   `json:"store_id"`
	RegionCode     string   `json:"region_code,omitempty"`
	ISOWeek        string   `json:"iso_week,omitempty"`
	MonthKey       string   `json:"month_key,omitempty"`
	TopPositive    string   `json:"top_positive,omitempty"`
	TopNegative    string   `json:"top_negative,omitempty"`
	PositiveImpact float64  `json:"positive_impact"`
	NegativeImpact float64  `json:"negative_impact"`
	Notes          string   `json:"notes,omitempty"`
	Mood           string   `json:"mood,omitempty"`
	Themes         []string `json:"themes,omitempty"`
}

// ThemeCount is how many rows mention a theme.
type ThemeCount struct {
	Theme string `json:"theme"`
	Count int    `json:"count"`
}

// Header carries aggregates computed over the rows in the bundle.
type Header struct {
	RowCount            int            `json:"row_count"`
	StoreCount          int            `json:"store_count"`
	MoodCounts          map[string]int `json:"mood_counts"`
	PositiveImpactTotal float64        `json:"positive_impact_total"`
	NegativeImpactTotal float64        `json:"negative_impact_total"`
	TopThemes           []ThemeCount   `json:"top_themes"`
}

// Bundle is the full provider payload.
type Bundle struct {
	Header Header `json:"header"`
	Rows   []Row  `json:"rows"`
}

const maxTopThemes = 10

// Build keeps at most maxRows rows (the caller passes them newest first),
// truncates every text field to maxFieldBytes and computes the header.
// Returns an empty bundle (never nil rows) for empty input.
func Build(rows []*models.Feedback, maxRows, maxFieldBytes int) Bundle {
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	b := Bundle{
		Header: Header{MoodCounts: map[string]int{}, TopThemes: []ThemeCount{}},
		Rows:   make([]Row, 0, len(rows)),
	}
	stores := make(map[string]struct{})
	themes := make(map[string]int)

	for _, f := range rows {
		row := Row{
			StoreID:        Truncate(f.StoreID, maxFieldBytes),
			RegionCode:     Truncate(f.RegionCode, maxFieldBytes),
			ISOWeek:        deref(f.ISOWeek),
			MonthKey:       deref(f.MonthKey),
			TopPositive:    Truncate(f.TopPositive, maxFieldBytes),
			TopNegative:    Truncate(f.TopNegative, maxFieldBytes),
			PositiveImpact: f.PositiveImpact,
			NegativeImpact: f.NegativeImpact,
			Notes:          Truncate(f.Notes, maxFieldBytes),
		}
		if !f.IsPendingEnrichment() {
			row.Mood = f.OverallMood
			b.Header.MoodCounts[f.OverallMood]++
			for _, th := range f.Themes {
				if th != models.ThemePending {
					row.Themes = append(row.Themes, th)
					themes[th]++
				}
			}
		} else {
			b.Header.MoodCounts[models.MoodPending]++
		}

		stores[f.StoreID] = struct{}{}
		b.Header.PositiveImpactTotal += f.PositiveImpact
		b.Header.NegativeImpactTotal += f.NegativeImpact
		b.Rows = append(b.Rows, row)
	}

	b.Header.RowCount = len(b.Rows)
	b.Header.StoreCount = len(stores)
	b.Header.TopThemes = topThemes(themes, maxTopThemes)
	return b
}

// JSON serialises the bundle for the provider request.
func (b Bundle) JSON() (json.RawMessage, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return data, nil
}

// topThemes orders themes by count DESC, then name ASC.
func topThemes(counts map[string]int, limit int) []ThemeCount {
	out := make([]ThemeCount, 0, len(counts))
	for th, n := range counts {
		out = append(out, ThemeCount{Theme: th, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Theme < out[j].Theme
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IdempotencyKey derives a stable key for a submission whose caller did not
// supply one: the same store and time window always map to the same key.
func IdempotencyKey(storeID, isoWeek, monthKey string) string {
	normalized := strings.Join([]string{
		normalize(storeID), normalize(isoWeek), normalize(monthKey),
	}, "|")
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// EnrichmentText joins the free-text fields of a submission into one
// prompt body. Each field is cut to perField bytes and the result to total.
func EnrichmentText(f *models.Feedback, perField, total int) string {
	var parts []string
	add := func(label, v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			parts = append(parts, label+": "+Truncate(v, perField))
		}
	}
	add("Top positive", f.TopPositive)
	add("Top negative", f.TopNegative)
	add("Notes", f.Notes)
	return Truncate(strings.Join(parts, "\n"), total)
}

func normalize(s string) string {
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Truncate cuts s to maxBytes without splitting UTF-8 runes.
// A non-positive maxBytes leaves s unchanged.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
