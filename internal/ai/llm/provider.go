package llm

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// Completer is a single-turn chat backend.
type Completer interface {
	Complete(ctx context.Context, system, user string) (text, model string, err error)
}

// Provider implements models.AIProvider on top of any Completer.
type Provider struct {
	name string
	c    Completer
}

func NewProvider(name string, c Completer) *Provider {
	return &Provider{name: name, c: c}
}

func (p *Provider) Name() string { return p.name }

// Analyze asks for a report and returns the JSON object from the reply.
func (p *Provider) Analyze(ctx context.Context, req models.ReportRequest) (models.ReportAnalysis, error) {
	system, user := ReportMessages(req)
	text, model, err := p.c.Complete(ctx, system, user)
	if err != nil {
		return models.ReportAnalysis{}, fmt.Errorf("%s analyze: %w", p.name, err)
	}
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return models.ReportAnalysis{}, fmt.Errorf("%s analyze: %w", p.name, err)
	}
	return models.ReportAnalysis{JSON: obj, Model: model}, nil
}

// Enrich tags a single submission with a mood and themes.
func (p *Provider) Enrich(ctx context.Context, req models.EnrichmentRequest) (models.Enrichment, error) {
	system, user := EnrichMessages(req)
	text, model, err := p.c.Complete(ctx, system, user)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("%s enrich: %w", p.name, err)
	}
	e, err := ParseEnrichment(text)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("%s enrich: %w", p.name, err)
	}
	e.Model = model
	return e, nil
}

var _ models.AIProvider = (*Provider)(nil)
