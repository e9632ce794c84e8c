package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Envelope markers. Prompts instruct the model to wrap its structured
// payload as:
//
//	DIGEST: sha256:<hex of the payload between the markers>
//	-----BEGIN RESPONSE-----
//	<payload>
//	-----END RESPONSE-----
//
// The digest line is optional on decode; models that cannot compute it are
// still accepted, but a present digest must match.
const (
	BeginMarker  = "-----BEGIN RESPONSE-----"
	EndMarker    = "-----END RESPONSE-----"
	digestPrefix = "DIGEST: sha256:"
)

// Budget bounds one structured call: the output token budget plus the
// cardinality limits stated in the prompt and enforced on decode.
type Budget struct {
	// MaxOutputTokens is the requested output size limit.
	MaxOutputTokens int

	// MaxItems caps top-level result entries (selections or citations).
	MaxItems int

	// MaxLocations caps requested locations per selection entry.
	MaxLocations int

	// MaxRationaleLen caps rationale length in characters.
	MaxRationaleLen int
}

// Payload is a structured LLM result that knows how to parse and bound
// itself. UnmarshalPayload must fully overwrite previous state so a value
// can be reused across retry attempts.
type Payload interface {
	UnmarshalPayload(data []byte) error
	Validate(b Budget) *DecodeError
	Empty() bool
}

// PayloadDigest computes the integrity digest over a payload span.
func PayloadDigest(span string) string {
	sum := sha256.Sum256([]byte(span))
	return hex.EncodeToString(sum[:])
}

// EncodeEnvelope wraps a payload in the envelope format. Used by tests and
// by prompt examples; production payloads are encoded by the model itself
// per the prompt contract.
func EncodeEnvelope(payload string) string {
	span := strings.TrimSpace(payload)
	var b strings.Builder
	b.WriteString(digestPrefix)
	b.WriteString(PayloadDigest(span))
	b.WriteString("\n")
	b.WriteString(BeginMarker)
	b.WriteString("\n")
	b.WriteString(span)
	b.WriteString("\n")
	b.WriteString(EndMarker)
	b.WriteString("\n")
	return b.String()
}

// DecodeEnvelope validates a completion and parses its payload into p.
// The checks run in a fixed order; the first failure wins:
//
//  1. a length-limited stop reason fails as Truncated, before any parsing
//  2. missing markers fail as MalformedEnvelope
//  3. a present digest line must match the payload span
//  4. the span must parse as the expected structure
//  5. the parsed value must satisfy the budget's cardinality bounds
//  6. a valid but empty result collection fails as EmptyResult
func DecodeEnvelope(comp *Completion, budget Budget, p Payload) *DecodeError {
	if comp.StopReason == StopReasonLength {
		return &DecodeError{Kind: KindTruncated}
	}

	span, digest, derr := extractSpan(comp.Text)
	if derr != nil {
		return derr
	}

	if digest != "" && digest != PayloadDigest(span) {
		return &DecodeError{Kind: KindIntegrityMismatch}
	}

	if err := p.UnmarshalPayload([]byte(CleanPayload(span))); err != nil {
		return &DecodeError{Kind: KindInvalidPayload, Detail: err}
	}

	if derr := p.Validate(budget); derr != nil {
		return derr
	}

	if p.Empty() {
		return &DecodeError{Kind: KindEmptyResult}
	}

	return nil
}

// extractSpan locates the payload span between the markers and the optional
// digest preceding the begin marker.
func extractSpan(text string) (span, digest string, derr *DecodeError) {
	begin := strings.Index(text, BeginMarker)
	if begin < 0 {
		return "", "", &DecodeError{Kind: KindMalformedEnvelope, Detail: fmt.Errorf("missing begin marker")}
	}
	rest := text[begin+len(BeginMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		return "", "", &DecodeError{Kind: KindMalformedEnvelope, Detail: fmt.Errorf("missing end marker")}
	}
	span = strings.TrimSpace(rest[:end])

	// Scan the preamble for the digest line. Models sometimes prepend
	// prose; only a line with the exact prefix counts.
	for _, line := range strings.Split(text[:begin], "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, digestPrefix) {
			digest = strings.TrimSpace(strings.TrimPrefix(line, digestPrefix))
		}
	}
	return span, digest, nil
}
