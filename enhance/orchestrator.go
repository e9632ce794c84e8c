package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/cache"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/metrics"
)

// UnitState is a unit's position in the per-unit state machine.
type UnitState string

const (
	StatePending    UnitState = "pending"
	StateSelecting  UnitState = "selecting"
	StateSelected   UnitState = "selected"
	StateAnnotating UnitState = "annotating"
	StateDone       UnitState = "done"
	StateFailed     UnitState = "failed"
)

// UnitResult is a unit's terminal record for the run summary.
type UnitResult struct {
	UnitID string    `json:"unit_id"`
	State  UnitState `json:"state"`

	// FailureKind is set when State is failed.
	FailureKind llm.FailureKind `json:"failure_kind,omitempty"`
	Error       string          `json:"error,omitempty"`

	// Annotation is the enhanced output when State is done.
	Annotation *Annotation `json:"annotation,omitempty"`
	Provenance []string    `json:"provenance,omitempty"`

	// Attempts is the combined LLM attempt history across both phases.
	Attempts []llm.Attempt `json:"attempts,omitempty"`

	SelectionCached  bool `json:"selection_cached,omitempty"`
	AnnotationCached bool `json:"annotation_cached,omitempty"`
	OutputTokens     int  `json:"output_tokens,omitempty"`
}

// Summary is the per-run report consumed by the downstream assembly step.
type Summary struct {
	RunID        string                  `json:"run_id"`
	Done         int                     `json:"done"`
	Failed       int                     `json:"failed"`
	FailureKinds map[llm.FailureKind]int `json:"failure_kinds,omitempty"`
	OutputTokens int                     `json:"output_tokens"`
	Units        []UnitResult            `json:"units"`
}

// Orchestrator sequences cache-check, selection, annotation, and
// cache-write per unit across the document. A failed unit never blocks
// subsequent units. The orchestrator owns its collaborators by explicit
// construction; nothing here is a package-level singleton.
type Orchestrator struct {
	selector     *Selector
	annotator    *Annotator
	resolver     ExcerptResolver
	store        cache.Store
	configDigest string
	workers      int
	logger       *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithResolver sets the excerpt resolver. Defaults to resolving from the
// corpus index.
func WithResolver(r ExcerptResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithConfigDigest sets the configuration digest folded into cache
// fingerprints, so config changes invalidate cached phases.
func WithConfigDigest(d string) OrchestratorOption {
	return func(o *Orchestrator) { o.configDigest = d }
}

// WithWorkers sets the number of units processed concurrently. Defaults to
// 1 (strictly sequential), which keeps per-run cost observable; bounded
// parallelism is an opt-in.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator over the two phase services and
// the enhancement cache.
func NewOrchestrator(selector *Selector, annotator *Annotator, store cache.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		selector:  selector,
		annotator: annotator,
		store:     store,
		workers:   1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every target unit against the corpus index. Cancellation is
// honored between units, never mid-call: in-flight units finish, unstarted
// units stay pending, and the summary reflects both. The returned error is
// only the context's, when cancelled.
func (o *Orchestrator) Run(ctx context.Context, targets []corpus.TextUnit, idx *corpus.Index) (*Summary, error) {
	summary := &Summary{
		RunID:        ulid.Make().String(),
		FailureKinds: make(map[llm.FailureKind]int),
		Units:        make([]UnitResult, len(targets)),
	}
	for i, unit := range targets {
		summary.Units[i] = UnitResult{UnitID: unit.ID, State: StatePending}
	}

	o.logger.Info("Run started",
		"run_id", summary.RunID,
		"units", len(targets),
		"workers", o.workers,
		"index_method", idx.Method)

	if o.workers <= 1 {
		for i, unit := range targets {
			if ctx.Err() != nil {
				break
			}
			summary.Units[i] = o.processUnit(ctx, unit, idx)
		}
	} else {
		o.runPool(ctx, targets, idx, summary)
	}

	for _, res := range summary.Units {
		switch res.State {
		case StateDone:
			summary.Done++
		case StateFailed:
			summary.Failed++
			summary.FailureKinds[res.FailureKind]++
		}
		summary.OutputTokens += res.OutputTokens
	}

	o.logger.Info("Run finished",
		"run_id", summary.RunID,
		"done", summary.Done,
		"failed", summary.Failed,
		"output_tokens", summary.OutputTokens)
	return summary, ctx.Err()
}

// runPool processes units on a fixed-size worker pool. Units are
// independent; each one still runs its two phases in order.
func (o *Orchestrator) runPool(ctx context.Context, targets []corpus.TextUnit, idx *corpus.Index, summary *Summary) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				summary.Units[i] = o.processUnit(ctx, targets[i], idx)
			}
		}()
	}
	for i := range targets {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// processUnit drives one unit through the state machine.
func (o *Orchestrator) processUnit(ctx context.Context, unit corpus.TextUnit, idx *corpus.Index) UnitResult {
	start := time.Now()
	res := UnitResult{UnitID: unit.ID, State: StatePending}

	req := o.selectPhase(ctx, unit, idx, &res)
	if res.State == StateFailed {
		o.recordOutcome(&res, start)
		return res
	}
	res.State = StateSelected

	o.annotatePhase(ctx, unit, idx, req, &res)
	o.recordOutcome(&res, start)
	return res
}

// selectPhase runs the cached phase-one step and returns the request.
func (o *Orchestrator) selectPhase(ctx context.Context, unit corpus.TextUnit, idx *corpus.Index, res *UnitResult) *ContentRequest {
	fp := cache.Fingerprint(unit.Text, cache.PhaseSelection, o.configDigest)
	if payload, ok := o.cacheGet(ctx, unit.ID, cache.PhaseSelection, fp); ok {
		var req ContentRequest
		if err := json.Unmarshal(payload, &req); err == nil {
			res.SelectionCached = true
			return &req
		}
		o.logger.Warn("Discarding undecodable cached selection", "unit", unit.ID)
	}

	res.State = StateSelecting
	req, callRes, err := o.selector.Select(ctx, unit, idx)
	o.recordCall(res, cache.PhaseSelection, callRes)
	if err != nil {
		kind := llm.TerminalKind(err)
		if errors.Is(err, ErrNoCandidates) {
			kind = llm.KindEmptyResult
		}
		o.fail(res, unit.ID, kind, err)
		return nil
	}

	o.cachePut(ctx, unit.ID, cache.PhaseSelection, fp, req)
	return req
}

// annotatePhase runs the cached phase-two step and finishes the unit.
func (o *Orchestrator) annotatePhase(ctx context.Context, unit corpus.TextUnit, idx *corpus.Index, req *ContentRequest, res *UnitResult) {
	fp := cache.Fingerprint(unit.Text, cache.PhaseAnnotation, o.configDigest)
	if payload, ok := o.cacheGet(ctx, unit.ID, cache.PhaseAnnotation, fp); ok {
		var ann Annotation
		if err := json.Unmarshal(payload, &ann); err == nil {
			res.AnnotationCached = true
			o.finish(res, &ann)
			return
		}
		o.logger.Warn("Discarding undecodable cached annotation", "unit", unit.ID)
	}

	resolver := o.resolver
	if resolver == nil {
		resolver = &IndexResolver{Index: idx}
	}
	excerpts, err := resolver.Resolve(ctx, req)
	if err != nil {
		o.fail(res, unit.ID, llm.KindProviderUnavailable, err)
		return
	}

	res.State = StateAnnotating
	ann, callRes, err := o.annotator.Annotate(ctx, unit, excerpts)
	o.recordCall(res, cache.PhaseAnnotation, callRes)
	if err != nil {
		o.fail(res, unit.ID, llm.TerminalKind(err), err)
		return
	}

	o.cachePut(ctx, unit.ID, cache.PhaseAnnotation, fp, ann)
	o.finish(res, ann)
}

func (o *Orchestrator) finish(res *UnitResult, ann *Annotation) {
	res.State = StateDone
	res.Annotation = ann
	res.Provenance = ann.Provenance
}

func (o *Orchestrator) fail(res *UnitResult, unitID string, kind llm.FailureKind, err error) {
	res.State = StateFailed
	res.FailureKind = kind
	res.Error = err.Error()
	o.logger.Warn("Unit failed",
		"unit", unitID,
		"kind", kind,
		"error", err)
}

func (o *Orchestrator) recordCall(res *UnitResult, phase cache.Phase, callRes *llm.CallResult) {
	if callRes == nil {
		return
	}
	res.Attempts = append(res.Attempts, callRes.Attempts...)
	res.OutputTokens += callRes.OutputTokens
	metrics.OutputTokens.WithLabelValues(string(phase)).Add(float64(callRes.OutputTokens))
	for _, a := range callRes.Attempts {
		result := "ok"
		if a.Kind != "" {
			result = string(a.Kind)
		}
		metrics.LLMAttempts.WithLabelValues(string(phase), result).Inc()
	}
}

func (o *Orchestrator) recordOutcome(res *UnitResult, start time.Time) {
	metrics.UnitDuration.Observe(time.Since(start).Seconds())
	switch res.State {
	case StateDone:
		metrics.UnitsProcessed.WithLabelValues("done").Inc()
	case StateFailed:
		metrics.UnitsProcessed.WithLabelValues("failed").Inc()
		metrics.UnitFailures.WithLabelValues(string(res.FailureKind)).Inc()
	}
}

// cacheGet reads a phase record, treating storage errors as misses so a
// degraded cache slows a run down instead of failing it.
func (o *Orchestrator) cacheGet(ctx context.Context, unitID string, phase cache.Phase, fp string) ([]byte, bool) {
	payload, ok, err := o.store.Get(ctx, unitID, phase, fp)
	if err != nil {
		o.logger.Warn("Cache read failed",
			"unit", unitID,
			"phase", phase,
			"error", err)
		metrics.CacheLookups.WithLabelValues(string(phase), "miss").Inc()
		return nil, false
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	metrics.CacheLookups.WithLabelValues(string(phase), result).Inc()
	return payload, ok
}

// cachePut writes a validated phase result. Write failures cost a future
// rerun the cached call but never fail the unit.
func (o *Orchestrator) cachePut(ctx context.Context, unitID string, phase cache.Phase, fp string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		o.logger.Warn("Cache marshal failed", "unit", unitID, "phase", phase, "error", err)
		return
	}
	if err := o.store.Put(ctx, unitID, phase, fp, payload); err != nil {
		o.logger.Warn("Cache write failed",
			"unit", unitID,
			"phase", phase,
			"error", err)
	}
}
