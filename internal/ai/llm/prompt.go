package llm

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/storepulse/pkg/models"
)

const reportSystemPrompt = `You analyse weekly feedback from retail store managers.
You receive a JSON bundle with a "header" of aggregates and a list of "rows".
Respond with a single JSON object and nothing else, using these keys:
"summary" (string), "top_positives" (array of strings), "top_negatives" (array of strings),
"themes" (array of {"theme","count"}), "risks" (array of strings), "actions" (array of strings).`

const enrichSystemPrompt = `You tag one store manager's feedback.
Respond with a single JSON object and nothing else:
{"overall_mood": "positive" | "neutral" | "negative" | "mixed", "themes": [up to 5 short lower-case tags]}`

// ReportMessages returns the system and user messages for a report request.
func ReportMessages(req models.ReportRequest) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Scope: %s", req.ScopeType)
	if req.ScopeKey != "" {
		fmt.Fprintf(&b, " %s", req.ScopeKey)
	}
	if req.ISOWeek != "" {
		fmt.Fprintf(&b, "\nWeek: %s", req.ISOWeek)
	}
	if req.MonthKey != "" {
		fmt.Fprintf(&b, "\nMonth: %s", req.MonthKey)
	}
	fmt.Fprintf(&b, "\nRows: %d\n\n", req.RowCount)
	b.Write(req.Payload)
	return reportSystemPrompt, b.String()
}

// EnrichMessages returns the system and user messages for an enrichment request.
func EnrichMessages(req models.EnrichmentRequest) (system, user string) {
	return enrichSystemPrompt, fmt.Sprintf("Store: %s\n\n%s", req.StoreID, req.Text)
}
