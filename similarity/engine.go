// Package similarity builds vector representations of text units and scores
// cross-corpus relatedness. The engine is tiered: a remote embedding service
// is preferred, a local embedding model is the first fallback, and a
// TF-IDF term-vector representation is the last resort. Callers see only a
// method tag; tier failures surface as log warnings, not errors, unless
// every tier fails.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
)

// MethodTermVector tags indexes built by the TF-IDF fallback tier.
const MethodTermVector = "term-vector"

// Default query parameters.
const (
	DefaultThreshold = 0.7
	DefaultTopN      = 5
)

// Engine builds corpus indexes and answers relatedness queries.
type Engine struct {
	remote Embedder
	local  Embedder
	vec    *vectorizer
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRemoteEmbedder sets the preferred remote embedding tier.
func WithRemoteEmbedder(e Embedder) Option {
	return func(eng *Engine) { eng.remote = e }
}

// WithLocalEmbedder sets the local embedding fallback tier.
func WithLocalEmbedder(e Embedder) Option {
	return func(eng *Engine) { eng.local = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// NewEngine creates a similarity engine. Without embedder options it runs
// on the term-vector tier alone.
func NewEngine(opts ...Option) *Engine {
	eng := &Engine{
		vec:    newVectorizer(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Build constructs the read-only index for a corpus: one vector per unit and
// the full pairwise score matrix. Scoring after Build is a row lookup, never
// a recompute.
func (e *Engine) Build(ctx context.Context, units []corpus.TextUnit) (*corpus.Index, error) {
	idx := &corpus.Index{
		Units: append([]corpus.TextUnit(nil), units...),
		Rows:  make(map[string]int, len(units)),
	}
	for i, u := range idx.Units {
		if _, dup := idx.Rows[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit ID %s", u.ID)
		}
		idx.Rows[u.ID] = i
	}

	vectors, method, err := e.vectors(ctx, idx.Units)
	if err != nil {
		return nil, err
	}
	idx.Method = method
	idx.Scores = scoreMatrix(vectors, len(idx.Units))
	e.logger.Debug("Built similarity index",
		"units", len(idx.Units),
		"method", method)
	return idx, nil
}

// vectors embeds every unit using the highest tier that works. A tier is
// abandoned on its first error and the next tier takes over from scratch.
func (e *Engine) vectors(ctx context.Context, units []corpus.TextUnit) ([]Vector, string, error) {
	for _, tier := range []Embedder{e.remote, e.local} {
		if tier == nil {
			continue
		}
		vectors, err := embedAll(ctx, tier, units)
		if err == nil {
			return vectors, tier.Name(), nil
		}
		e.logger.Warn("Embedding tier failed, falling back",
			"tier", tier.Name(),
			"error", err)
	}

	docs := make([]string, len(units))
	for i, u := range units {
		docs[i] = u.IndexText()
	}
	vectors := e.vec.Vectors(docs)
	if vectors == nil && len(units) > 1 {
		return nil, "", fmt.Errorf("term vectorization produced no vectors for %d units", len(units))
	}
	return toVectors(vectors), MethodTermVector, nil
}

func embedAll(ctx context.Context, emb Embedder, units []corpus.TextUnit) ([]Vector, error) {
	vectors := make([]Vector, len(units))
	for i, u := range units {
		v, err := emb.Embed(ctx, u.IndexText())
		if err != nil {
			return nil, fmt.Errorf("embed unit %s: %w", u.ID, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func toVectors(vecs [][]float32) []Vector {
	out := make([]Vector, len(vecs))
	for i, v := range vecs {
		out[i] = v
	}
	return out
}

// scoreMatrix computes the symmetric pairwise cosine matrix. With no vectors
// (corpus of one) every off-diagonal score is zero.
func scoreMatrix(vectors []Vector, n int) [][]float64 {
	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = make([]float64, n)
		scores[i][i] = 1
	}
	if len(vectors) != n {
		return scores
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := CosineSimilarity(vectors[i], vectors[j])
			if s < 0 {
				s = 0
			}
			scores[i][j] = s
			scores[j][i] = s
		}
	}
	return scores
}

// QueryOptions bound a RelatedTo query.
type QueryOptions struct {
	Threshold float64
	TopN      int
}

// RelatedTo returns up to TopN units related to the given unit with
// score >= Threshold, excluding the unit itself and any unit from the same
// source. Ties break by (score desc, unit ID asc). An unindexed unit, or a
// corpus too small for statistics, yields an empty list.
func (e *Engine) RelatedTo(unitID string, idx *corpus.Index, opts QueryOptions) []corpus.Link {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.TopN == 0 {
		opts.TopN = DefaultTopN
	}

	row, ok := idx.Rows[unitID]
	if !ok {
		return nil
	}
	source := idx.Units[row].SourceID

	links := make([]corpus.Link, 0, opts.TopN)
	for j, target := range idx.Units {
		if j == row || target.SourceID == source {
			continue
		}
		score := idx.Scores[row][j]
		if score < opts.Threshold {
			continue
		}
		links = append(links, corpus.Link{
			SourceUnitID: unitID,
			TargetUnitID: target.ID,
			Score:        score,
			Method:       idx.Method,
		})
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].Score != links[j].Score {
			return links[i].Score > links[j].Score
		}
		return links[i].TargetUnitID < links[j].TargetUnitID
	})
	if len(links) > opts.TopN {
		links = links[:opts.TopN]
	}
	return links
}
