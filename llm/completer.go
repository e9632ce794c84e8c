// Package llm provides the provider-agnostic completion boundary, the
// response envelope codec, and the retrying client that turns a stochastic
// LLM call into a validated structured payload.
package llm

import "context"

// StopReason is the normalized reason a completion stopped.
type StopReason string

const (
	// StopReasonStop means generation completed naturally.
	StopReasonStop StopReason = "stop"

	// StopReasonLength means generation was cut off by a length limit.
	// Per-call timeout expiry is normalized to this reason as well, since
	// both yield an output that must not be parsed.
	StopReasonLength StopReason = "length"

	// StopReasonError means the provider reported an abnormal stop.
	StopReasonError StopReason = "error"
)

// CompletionRequest is one prompt submission.
type CompletionRequest struct {
	// System is the system prompt, empty to omit.
	System string

	// Prompt is the user prompt.
	Prompt string

	// MaxOutputTokens limits response length. Must be positive.
	MaxOutputTokens int
}

// Completion is the raw result of one LLM call.
type Completion struct {
	// Text is the generated output.
	Text string

	// OutputTokens is the number of tokens generated, when the provider
	// reports it; 0 otherwise.
	OutputTokens int

	// StopReason is the normalized stop reason.
	StopReason StopReason
}

// Completer is the minimal provider capability this engine depends on.
// The envelope and retry layers are built entirely on this contract, so any
// conforming provider is usable.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
