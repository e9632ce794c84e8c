package llm

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an LLM response could not be used. Each kind
// drives a different retry strategy in RetryClient.
type FailureKind string

const (
	// KindTruncated means the output was cut off by a length limit.
	KindTruncated FailureKind = "truncated"

	// KindMalformedEnvelope means a begin or end marker is missing.
	KindMalformedEnvelope FailureKind = "malformed_envelope"

	// KindIntegrityMismatch means the integrity digest does not match the
	// enclosed payload span.
	KindIntegrityMismatch FailureKind = "integrity_mismatch"

	// KindInvalidPayload means the payload span is not syntactically valid.
	KindInvalidPayload FailureKind = "invalid_payload"

	// KindConstraintViolation means a field exceeds its cardinality bound.
	KindConstraintViolation FailureKind = "constraint_violation"

	// KindEmptyResult means the payload parsed but carries zero items.
	// An empty selection or citation list is never a valid terminal state.
	KindEmptyResult FailureKind = "empty_result"

	// KindProviderUnavailable means the provider could not be reached or
	// rejected the request outright (auth, bad request).
	KindProviderUnavailable FailureKind = "provider_unavailable"
)

// DecodeError reports a single envelope decode failure.
type DecodeError struct {
	Kind FailureKind

	// Field and Bound are set for KindConstraintViolation and name the
	// violated field and its limit.
	Field string
	Bound int

	// Detail optionally carries the underlying error.
	Detail error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Kind == KindConstraintViolation:
		return fmt.Sprintf("decode %s: field %s exceeds bound %d", e.Kind, e.Field, e.Bound)
	case e.Detail != nil:
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Detail)
	default:
		return fmt.Sprintf("decode %s", e.Kind)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Detail
}

// Attempt records one call attempt for diagnostics and re-run summaries.
type Attempt struct {
	// Kind is the failure kind, or empty for the successful attempt.
	Kind FailureKind `json:"kind,omitempty"`

	// MaxOutputTokens is the output budget the attempt was issued with.
	MaxOutputTokens int `json:"max_output_tokens"`

	// OutputTokens is the observed output size, when a completion arrived.
	OutputTokens int `json:"output_tokens,omitempty"`

	// Detail is a short description of the failure.
	Detail string `json:"detail,omitempty"`
}

// RetryExhaustedError is the terminal error after all attempts failed. It
// carries the last failure kind and the full attempt history.
type RetryExhaustedError struct {
	LastKind FailureKind
	History  []Attempt
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts, last failure %s", len(e.History), e.LastKind)
}

// ProviderUnavailableError is the terminal error for unreachable or
// misconfigured providers.
type ProviderUnavailableError struct {
	err error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable: %v", e.err)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.err
}

// TerminalKind extracts the failure kind from a terminal error, for run
// summaries. Unknown errors map to KindProviderUnavailable.
func TerminalKind(err error) FailureKind {
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.LastKind
	}
	return KindProviderUnavailable
}

// TransientError represents a temporary transport error that may succeed on
// retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent transport error that should not be
// retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
