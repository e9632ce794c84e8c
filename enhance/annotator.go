package enhance

import (
	"context"
	"log/slog"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/enhance/prompts"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// ExcerptResolver supplies the source text for a validated ContentRequest.
// Resolution is an external collaborator concern (full-text storage lives
// outside this engine); the interface is the boundary.
type ExcerptResolver interface {
	Resolve(ctx context.Context, req *ContentRequest) ([]prompts.Excerpt, error)
}

// IndexResolver resolves excerpts from the corpus index itself, serving a
// requested unit's own text. It ignores location hints.
type IndexResolver struct {
	Index *corpus.Index
}

// Resolve returns one excerpt per resolvable entry. Unknown unit IDs are
// skipped rather than failing the phase; the annotation prompt works with
// whatever resolved.
func (r *IndexResolver) Resolve(_ context.Context, req *ContentRequest) ([]prompts.Excerpt, error) {
	excerpts := make([]prompts.Excerpt, 0, len(req.Entries))
	for _, entry := range req.Entries {
		unit, err := r.Index.Unit(entry.UnitID)
		if err != nil {
			continue
		}
		excerpts = append(excerpts, prompts.Excerpt{
			UnitID: unit.ID,
			Title:  unit.Title,
			Text:   unit.Text,
		})
	}
	return excerpts, nil
}

// Annotator is the phase-two annotation service.
type Annotator struct {
	client       *llm.RetryClient
	outputTokens int
	logger       *slog.Logger
}

// AnnotatorOption configures an Annotator.
type AnnotatorOption func(*Annotator)

// WithAnnotationOutputTokens sets the phase-two output budget.
func WithAnnotationOutputTokens(n int) AnnotatorOption {
	return func(a *Annotator) { a.outputTokens = n }
}

// WithAnnotatorLogger sets the logger.
func WithAnnotatorLogger(logger *slog.Logger) AnnotatorOption {
	return func(a *Annotator) { a.logger = logger }
}

// NewAnnotator creates a phase-two annotator.
func NewAnnotator(client *llm.RetryClient, opts ...AnnotatorOption) *Annotator {
	a := &Annotator{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Annotate runs phase two for a unit given its resolved excerpts and
// returns the validated annotation plus the call's attempt history.
func (a *Annotator) Annotate(ctx context.Context, unit corpus.TextUnit, excerpts []prompts.Excerpt) (*Annotation, *llm.CallResult, error) {
	var ann Annotation
	res, err := a.client.Call(ctx, func(state llm.RetryState) (string, string) {
		return prompts.AnnotationSystem(), prompts.Annotation(unit, excerpts, state)
	}, AnnotationBudget(a.outputTokens), &ann)
	if err != nil {
		return nil, res, err
	}

	a.logger.Debug("Unit annotated",
		"unit", unit.ID,
		"provenance", len(ann.Provenance),
		"attempts", len(res.Attempts))
	return &ann, res, nil
}
