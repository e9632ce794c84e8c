package enhance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/cache"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm/testutil"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/similarity"
)

// Corpus guideline units paired across sources so the term-vector tier
// relates alpha<->beta and delta<->epsilon with certainty.
func pipelineUnits() []corpus.TextUnit {
	return []corpus.TextUnit{
		{
			ID: "alpha", SourceID: "book-a", Title: "Error Handling",
			Text:    "Wrap errors with context at package boundaries.",
			Summary: corpus.Summary{Keywords: []string{"errors", "wrapping", "sentinel", "boundaries"}},
		},
		{
			ID: "beta", SourceID: "book-b", Title: "Error Handling",
			Text:    "Sentinel errors are part of your API surface.",
			Summary: corpus.Summary{Keywords: []string{"errors", "wrapping", "sentinel", "boundaries"}},
		},
		{
			ID: "delta", SourceID: "book-c", Title: "Interfaces",
			Text:    "Accept interfaces, return structs.",
			Summary: corpus.Summary{Keywords: []string{"interfaces", "structs", "embedding", "satisfaction"}},
		},
		{
			ID: "epsilon", SourceID: "book-d", Title: "Interfaces",
			Text:    "Keep interfaces small and consumer-defined.",
			Summary: corpus.Summary{Keywords: []string{"interfaces", "structs", "embedding", "satisfaction"}},
		},
	}
}

func buildIndex(t *testing.T, units []corpus.TextUnit) *corpus.Index {
	t.Helper()
	idx, err := similarity.NewEngine().Build(context.Background(), units)
	require.NoError(t, err)
	return idx
}

func envelope(payload string) *llm.Completion {
	return &llm.Completion{
		Text:         llm.EncodeEnvelope(payload),
		StopReason:   llm.StopReasonStop,
		OutputTokens: 50,
	}
}

func selectionOf(unitID string) *llm.Completion {
	return envelope(`{"entries": [{"unit_id": "` + unitID + `", "rationale": "same guideline topic"}]}`)
}

func annotationCiting(unitID string) *llm.Completion {
	return envelope(`{"text": "Enhanced text citing [ref:` + unitID + `].", "provenance": ["` + unitID + `"]}`)
}

func newTestOrchestrator(completer llm.Completer, store cache.Store, opts ...OrchestratorOption) *Orchestrator {
	cfg := llm.DefaultRetryConfig()
	cfg.BackoffBase = 0
	client := llm.NewRetryClient(completer, llm.WithRetryConfig(cfg))
	sel := NewSelector(client, similarity.NewEngine())
	ann := NewAnnotator(client)
	return NewOrchestrator(sel, ann, store, opts...)
}

func TestRun_EndToEnd(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{
			selectionOf("beta"),
			annotationCiting("beta"),
		},
	}
	store := cache.NewMemoryStore()
	orch := newTestOrchestrator(mock, store)

	summary, err := orch.Run(context.Background(), units[:1], idx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Done)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 100, summary.OutputTokens)

	require.Len(t, summary.Units, 1)
	res := summary.Units[0]
	assert.Equal(t, "alpha", res.UnitID)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"beta"}, res.Provenance)
	require.NotNil(t, res.Annotation)
	assert.Equal(t, []string{"beta"}, res.Annotation.Markers())
	assert.False(t, res.SelectionCached)
	assert.False(t, res.AnnotationCached)
	assert.Equal(t, 2, mock.CallCount())

	// Both phases were persisted.
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{
			selectionOf("beta"),
			annotationCiting("beta"),
		},
	}
	store := cache.NewMemoryStore()
	orch := newTestOrchestrator(mock, store)

	_, err := orch.Run(context.Background(), units[:1], idx)
	require.NoError(t, err)
	require.Equal(t, 2, mock.CallCount())

	// Same input, same config: zero additional LLM calls.
	summary, err := orch.Run(context.Background(), units[:1], idx)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.CallCount())

	res := summary.Units[0]
	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.SelectionCached)
	assert.True(t, res.AnnotationCached)
	assert.Equal(t, []string{"beta"}, res.Provenance)
}

func TestRun_UnitTextChangeInvalidatesOnlyThatUnit(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{
			selectionOf("beta"),
			annotationCiting("beta"),
			selectionOf("epsilon"),
			annotationCiting("epsilon"),
			// Re-enhancement of the edited first unit.
			selectionOf("beta"),
			annotationCiting("beta"),
		},
	}
	store := cache.NewMemoryStore()
	orch := newTestOrchestrator(mock, store)

	targets := []corpus.TextUnit{units[0], units[2]}
	_, err := orch.Run(context.Background(), targets, idx)
	require.NoError(t, err)
	require.Equal(t, 4, mock.CallCount())

	targets[0].Text = "Wrap errors with %w and inspect with errors.Is."
	summary, err := orch.Run(context.Background(), targets, idx)
	require.NoError(t, err)

	// Only the edited unit was recomputed.
	assert.Equal(t, 6, mock.CallCount())
	assert.False(t, summary.Units[0].SelectionCached)
	assert.True(t, summary.Units[1].SelectionCached)
	assert.Equal(t, 2, summary.Done)
}

func TestRun_ConfigChangeInvalidatesCache(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{
			selectionOf("beta"),
			annotationCiting("beta"),
		},
	}
	store := cache.NewMemoryStore()

	_, err := newTestOrchestrator(mock, store, WithConfigDigest("cfg-v1")).
		Run(context.Background(), units[:1], idx)
	require.NoError(t, err)
	require.Equal(t, 2, mock.CallCount())

	summary, err := newTestOrchestrator(mock, store, WithConfigDigest("cfg-v2")).
		Run(context.Background(), units[:1], idx)
	require.NoError(t, err)
	assert.Equal(t, 4, mock.CallCount())
	assert.False(t, summary.Units[0].SelectionCached)
}

func TestRun_NoCandidatesFailsUnitWithoutLLMCall(t *testing.T) {
	units := pipelineUnits()
	// A unit whose vocabulary appears nowhere else scores zero everywhere.
	lone := corpus.TextUnit{
		ID: "lone", SourceID: "book-e", Title: "Garbage Collection",
		Text:    "Tri-color marking with write barriers.",
		Summary: corpus.Summary{Keywords: []string{"gc", "tricolor", "barrier"}},
	}
	all := append(units, lone)
	idx := buildIndex(t, all)
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{
			selectionOf("beta"),
			annotationCiting("beta"),
		},
	}
	orch := newTestOrchestrator(mock, cache.NewMemoryStore())

	// The failing unit comes first; the run continues past it.
	summary, err := orch.Run(context.Background(), []corpus.TextUnit{lone, units[0]}, idx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.FailureKinds[llm.KindEmptyResult])

	assert.Equal(t, StateFailed, summary.Units[0].State)
	assert.Equal(t, llm.KindEmptyResult, summary.Units[0].FailureKind)
	assert.Equal(t, StateDone, summary.Units[1].State)

	// The no-candidate failure spent nothing.
	assert.Equal(t, 2, mock.CallCount())
}

// phaseAwareCompleter answers by inspecting the prompt, so concurrent units
// always receive a response matching the phase they asked for.
type phaseAwareCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *phaseAwareCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if strings.Contains(req.Prompt, "## Candidate Chapters") {
		return selectionOf("beta"), nil
	}
	return annotationCiting("beta"), nil
}

func (c *phaseAwareCompleter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRun_WorkerPoolReachesTerminalStates(t *testing.T) {
	units := pipelineUnits()
	lone := corpus.TextUnit{
		ID: "lone", SourceID: "book-e", Title: "Garbage Collection",
		Text:    "Tri-color marking with write barriers.",
		Summary: corpus.Summary{Keywords: []string{"gc", "tricolor", "barrier"}},
	}
	all := append(units, lone)
	idx := buildIndex(t, all)

	completer := &phaseAwareCompleter{}
	store := cache.NewMemoryStore()
	orch := newTestOrchestrator(completer, store, WithWorkers(3))

	targets := append(append([]corpus.TextUnit(nil), units...), lone)
	summary, err := orch.Run(context.Background(), targets, idx)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Done)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.FailureKinds[llm.KindEmptyResult])

	// Results keep target order regardless of completion order, and every
	// unit is terminal.
	require.Len(t, summary.Units, len(targets))
	for i, res := range summary.Units {
		assert.Equal(t, targets[i].ID, res.UnitID)
		assert.Contains(t, []UnitState{StateDone, StateFailed}, res.State)
	}
	assert.Equal(t, StateFailed, summary.Units[4].State)

	// Four enhanced units, two calls each; the candidate-less unit spent none.
	assert.Equal(t, 8, completer.CallCount())

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Entries)
}

func TestRun_WorkerPoolStopsFeedingOnCancel(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := newTestOrchestrator(&phaseAwareCompleter{}, cache.NewMemoryStore(), WithWorkers(2))
	summary, err := orch.Run(ctx, units, idx)
	assert.ErrorIs(t, err, context.Canceled)
	for _, res := range summary.Units {
		assert.Equal(t, StatePending, res.State)
	}
}

func TestRun_PersistentlyEmptySelectionFailsUnitAndContinues(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	// Every response is a valid envelope with zero entries; the retry
	// protocol re-asks once per unit, then gives up.
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{envelope(`{"entries": []}`)},
	}
	orch := newTestOrchestrator(mock, cache.NewMemoryStore())

	summary, err := orch.Run(context.Background(), []corpus.TextUnit{units[0], units[2]}, idx)
	require.NoError(t, err)

	assert.Zero(t, summary.Done)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 2, summary.FailureKinds[llm.KindEmptyResult])
	for _, res := range summary.Units {
		assert.Equal(t, StateFailed, res.State)
		assert.Equal(t, llm.KindEmptyResult, res.FailureKind)
	}
	// Two attempts per unit, nothing more.
	assert.Equal(t, 4, mock.CallCount())
}

func TestRun_ProviderFailureMarksUnitFailed(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	mock := &testutil.ScriptedCompleter{
		Err: llm.NewFatalError(errors.New("401 unauthorized")),
	}
	orch := newTestOrchestrator(mock, cache.NewMemoryStore())

	summary, err := orch.Run(context.Background(), units[:1], idx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	res := summary.Units[0]
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, llm.KindProviderUnavailable, res.FailureKind)
	assert.NotEmpty(t, res.Error)
}

func TestRun_CancelledContextLeavesUnitsPending(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	orch := newTestOrchestrator(&testutil.ScriptedCompleter{}, cache.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := orch.Run(ctx, units[:2], idx)
	assert.ErrorIs(t, err, context.Canceled)
	for _, res := range summary.Units {
		assert.Equal(t, StatePending, res.State)
	}
}

// brokenStore fails every operation, exercising cache degradation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string, cache.Phase, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage offline")
}
func (brokenStore) Put(context.Context, string, cache.Phase, string, []byte) error {
	return errors.New("storage offline")
}
func (brokenStore) Stats(context.Context) (cache.Stats, error) {
	return cache.Stats{}, errors.New("storage offline")
}
func (brokenStore) Clear(context.Context) error { return errors.New("storage offline") }
func (brokenStore) Close() error                { return nil }

func TestRun_DegradedCacheStillSucceeds(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)
	mock := &testutil.ScriptedCompleter{
		Completions: []*llm.Completion{
			selectionOf("beta"),
			annotationCiting("beta"),
		},
	}
	orch := newTestOrchestrator(mock, brokenStore{})

	summary, err := orch.Run(context.Background(), units[:1], idx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
}

func TestSelector_Candidates(t *testing.T) {
	units := pipelineUnits()
	idx := buildIndex(t, units)

	cfg := llm.DefaultRetryConfig()
	cfg.BackoffBase = 0
	client := llm.NewRetryClient(&testutil.ScriptedCompleter{}, llm.WithRetryConfig(cfg))
	sel := NewSelector(client, similarity.NewEngine())

	candidates := sel.Candidates(units[0], idx)
	require.Len(t, candidates, 1)
	assert.Equal(t, "beta", candidates[0].Unit.ID)
	assert.InDelta(t, 1.0, candidates[0].Score, 1e-6)
}

func TestIndexResolver_SkipsUnknownUnits(t *testing.T) {
	idx := buildIndex(t, pipelineUnits())
	resolver := &IndexResolver{Index: idx}

	req := &ContentRequest{Entries: []SelectionEntry{
		{UnitID: "beta"},
		{UnitID: "no-such-unit"},
	}}
	excerpts, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, excerpts, 1)
	assert.Equal(t, "beta", excerpts[0].UnitID)
	assert.NotEmpty(t, excerpts[0].Text)
}
