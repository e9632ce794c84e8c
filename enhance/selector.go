package enhance

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/enhance/prompts"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/similarity"
)

// DefaultMaxCandidates caps the similarity shortlist offered to phase one.
const DefaultMaxCandidates = 10

// ErrNoCandidates is returned when similarity yields nothing to offer the
// selection prompt; the unit fails without spending an LLM call.
var ErrNoCandidates = errors.New("no related units above threshold")

// Selector is the phase-one content selector. It shortlists candidates via
// the similarity engine and obtains a validated ContentRequest through the
// retry stack.
type Selector struct {
	client        *llm.RetryClient
	engine        *similarity.Engine
	threshold     float64
	maxCandidates int
	outputTokens  int
	logger        *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithThreshold sets the similarity threshold for the candidate shortlist.
func WithThreshold(t float64) SelectorOption {
	return func(s *Selector) { s.threshold = t }
}

// WithMaxCandidates caps the candidate shortlist.
func WithMaxCandidates(n int) SelectorOption {
	return func(s *Selector) { s.maxCandidates = n }
}

// WithSelectionOutputTokens sets the phase-one output budget.
func WithSelectionOutputTokens(n int) SelectorOption {
	return func(s *Selector) { s.outputTokens = n }
}

// WithSelectorLogger sets the logger.
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = logger }
}

// NewSelector creates a phase-one selector.
func NewSelector(client *llm.RetryClient, engine *similarity.Engine, opts ...SelectorOption) *Selector {
	s := &Selector{
		client:        client,
		engine:        engine,
		threshold:     similarity.DefaultThreshold,
		maxCandidates: DefaultMaxCandidates,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Candidates returns the similarity shortlist for a unit, in link order.
func (s *Selector) Candidates(unit corpus.TextUnit, idx *corpus.Index) []prompts.Candidate {
	links := s.engine.RelatedTo(unit.ID, idx, similarity.QueryOptions{
		Threshold: s.threshold,
		TopN:      s.maxCandidates,
	})
	candidates := make([]prompts.Candidate, 0, len(links))
	for _, link := range links {
		target, err := idx.Unit(link.TargetUnitID)
		if err != nil {
			continue
		}
		candidates = append(candidates, prompts.Candidate{Unit: target, Score: link.Score})
	}
	return candidates
}

// Select runs phase one for a unit and returns the validated request plus
// the call's attempt history.
func (s *Selector) Select(ctx context.Context, unit corpus.TextUnit, idx *corpus.Index) (*ContentRequest, *llm.CallResult, error) {
	candidates := s.Candidates(unit, idx)
	if len(candidates) == 0 {
		s.logger.Info("No candidates for unit, skipping selection call",
			"unit", unit.ID)
		return nil, nil, ErrNoCandidates
	}

	var req ContentRequest
	res, err := s.client.Call(ctx, func(state llm.RetryState) (string, string) {
		return prompts.SelectionSystem(), prompts.Selection(unit, candidates, state)
	}, SelectionBudget(s.outputTokens), &req)
	if err != nil {
		return nil, res, err
	}

	s.logger.Debug("Content selected",
		"unit", unit.ID,
		"selected", req.UnitIDs(),
		"attempts", len(res.Attempts))
	return &req, res, nil
}
