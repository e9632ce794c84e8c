package llm

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryConfig tunes the adaptive retry protocol. The shrink factors are
// configuration defaults, not invariants; callers may override them.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// OutputShrink scales the output budget after a truncated attempt.
	OutputShrink float64

	// CardinalityShrink scales cardinality limits when tightening.
	CardinalityShrink float64

	// NearLimitRatio: an output at or above this fraction of the requested
	// budget is handled like a truncation even when the provider reported
	// a normal stop late.
	NearLimitRatio float64

	// BackoffBase is the initial backoff duration between attempts.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the default retry protocol parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		OutputShrink:      0.8,
		CardinalityShrink: 0.5,
		NearLimitRatio:    0.95,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// RetryState is the per-call transient state handed to the prompt builder
// on every attempt, so the rendered prompt always states the live limits.
type RetryState struct {
	// Attempt is the zero-based attempt number.
	Attempt int

	// Budget holds the current output budget and cardinality limits.
	Budget Budget

	// Strict asks the builder to append the stricter-constraints addendum.
	Strict bool

	// ForbidEmpty asks the builder to state that a zero-length result is
	// invalid. Set after an EmptyResult failure.
	ForbidEmpty bool
}

// PromptFunc renders the system and user prompts for one attempt.
type PromptFunc func(state RetryState) (system, prompt string)

// CallResult carries the attempt history and token totals of one call.
type CallResult struct {
	Attempts     []Attempt
	OutputTokens int
}

// RetryClient wraps a Completer with truncation detection, adaptive budget
// shrinking, and constraint tightening. Attempts are strictly sequential;
// a single call is never raced in parallel.
type RetryClient struct {
	completer Completer
	cfg       RetryConfig
	logger    *slog.Logger
}

// RetryOption configures a RetryClient.
type RetryOption func(*RetryClient)

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) RetryOption {
	return func(c *RetryClient) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RetryOption {
	return func(c *RetryClient) {
		c.logger = logger
	}
}

// NewRetryClient creates a retrying client over the given completer.
func NewRetryClient(completer Completer, opts ...RetryOption) *RetryClient {
	c := &RetryClient{
		completer: completer,
		cfg:       DefaultRetryConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call submits the prompt until the payload decodes and validates, adapting
// the budget between attempts:
//
//   - Truncated (or a near-limit output) shrinks the output budget by
//     OutputShrink and halves all cardinality limits.
//   - InvalidPayload and ConstraintViolation keep the output budget but
//     tighten cardinality limits and set the strict addendum.
//   - IntegrityMismatch and MalformedEnvelope retry the identical call.
//   - EmptyResult retries once with the forbid-empty addendum; a second
//     empty result is a permanent failure regardless of remaining attempts.
//
// Terminal errors are *RetryExhaustedError or *ProviderUnavailableError.
func (c *RetryClient) Call(ctx context.Context, build PromptFunc, budget Budget, payload Payload) (*CallResult, error) {
	state := RetryState{Budget: budget}
	res := &CallResult{}
	emptyRetried := false
	var lastKind FailureKind

	maxAttempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		state.Attempt = attempt
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return res, err
			}
		}

		system, prompt := build(state)
		comp, err := c.completer.Complete(ctx, CompletionRequest{
			System:          system,
			Prompt:          prompt,
			MaxOutputTokens: state.Budget.MaxOutputTokens,
		})
		if err != nil {
			if IsFatal(err) {
				return res, &ProviderUnavailableError{err: err}
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			lastKind = KindProviderUnavailable
			res.Attempts = append(res.Attempts, Attempt{
				Kind:            lastKind,
				MaxOutputTokens: state.Budget.MaxOutputTokens,
				Detail:          err.Error(),
			})
			c.logger.Warn("LLM call failed, retrying",
				"attempt", attempt,
				"error", err)
			continue
		}

		res.OutputTokens += comp.OutputTokens
		derr := DecodeEnvelope(comp, state.Budget, payload)
		record := Attempt{
			MaxOutputTokens: state.Budget.MaxOutputTokens,
			OutputTokens:    comp.OutputTokens,
		}
		if derr == nil {
			res.Attempts = append(res.Attempts, record)
			return res, nil
		}

		lastKind = derr.Kind
		record.Kind = derr.Kind
		record.Detail = derr.Error()
		res.Attempts = append(res.Attempts, record)

		c.logger.Warn("LLM response rejected",
			"attempt", attempt,
			"kind", derr.Kind,
			"output_tokens", comp.OutputTokens,
			"max_output_tokens", state.Budget.MaxOutputTokens)

		nearLimit := c.nearLimit(comp, state.Budget)
		switch derr.Kind {
		case KindTruncated:
			state.Budget = c.shrink(state.Budget)
		case KindInvalidPayload, KindConstraintViolation:
			// A parse failure near the output cap is usually a cutoff the
			// provider reported as a normal stop.
			if nearLimit {
				state.Budget = c.shrink(state.Budget)
			} else {
				state.Budget = c.tighten(state.Budget)
				state.Strict = true
			}
		case KindMalformedEnvelope:
			if nearLimit {
				state.Budget = c.shrink(state.Budget)
			}
			// Otherwise a transient protocol glitch; retry unchanged.
		case KindIntegrityMismatch:
			// Transient protocol glitch; retry unchanged.
		case KindEmptyResult:
			if emptyRetried {
				return res, &RetryExhaustedError{LastKind: KindEmptyResult, History: res.Attempts}
			}
			emptyRetried = true
			state.ForbidEmpty = true
		}
	}

	return res, &RetryExhaustedError{LastKind: lastKind, History: res.Attempts}
}

// nearLimit reports whether the output consumed almost the whole budget.
func (c *RetryClient) nearLimit(comp *Completion, b Budget) bool {
	if comp.OutputTokens <= 0 || b.MaxOutputTokens <= 0 {
		return false
	}
	return float64(comp.OutputTokens) >= c.cfg.NearLimitRatio*float64(b.MaxOutputTokens)
}

// shrink reduces the output budget and halves cardinality limits.
func (c *RetryClient) shrink(b Budget) Budget {
	b.MaxOutputTokens = int(math.Floor(c.cfg.OutputShrink * float64(b.MaxOutputTokens)))
	if b.MaxOutputTokens < 1 {
		b.MaxOutputTokens = 1
	}
	return c.tighten(b)
}

// tighten halves cardinality limits, keeping the output budget.
func (c *RetryClient) tighten(b Budget) Budget {
	b.MaxItems = scaleLimit(b.MaxItems, c.cfg.CardinalityShrink)
	b.MaxLocations = scaleLimit(b.MaxLocations, c.cfg.CardinalityShrink)
	b.MaxRationaleLen = scaleLimit(b.MaxRationaleLen, c.cfg.CardinalityShrink)
	return b
}

func scaleLimit(n int, factor float64) int {
	if n <= 1 {
		return n
	}
	scaled := int(float64(n) * factor)
	if scaled < 1 {
		return 1
	}
	return scaled
}

// wait sleeps the exponential backoff with jitter before a retry. Jitter
// prevents synchronized retries across concurrent runs.
func (c *RetryClient) wait(ctx context.Context, attempt int) error {
	if c.cfg.BackoffBase <= 0 {
		return ctx.Err()
	}

	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.cfg.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.cfg.BackoffBase) * multiplier)
	if backoff > c.cfg.MaxBackoff {
		backoff = c.cfg.MaxBackoff
	}
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	backoff += time.Duration(jitter)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}
