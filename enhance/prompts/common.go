// Package prompts builds the phase prompts for content selection and
// annotation. Every prompt states the response envelope contract and the
// live cardinality limits from the retry state, so tightened budgets are
// always reflected in what the model is told.
package prompts

import (
	"fmt"
	"strings"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// EnvelopeContract returns the response-format section shared by both
// phases. The model is asked to emit the integrity digest, but decode
// accepts responses without one.
func EnvelopeContract() string {
	return fmt.Sprintf(`## Response Format

Respond with EXACTLY this structure and nothing after the end marker:

DIGEST: sha256:<lowercase hex SHA-256 of the JSON between the markers, excluding surrounding whitespace>
%s
<your JSON response>
%s

If you cannot compute the digest, omit the DIGEST line entirely. Do not wrap
the JSON in a markdown code fence. Do not add comments or trailing commas.`,
		llm.BeginMarker, llm.EndMarker)
}

// Addenda renders the retry addenda for the given state: the stricter
// constraints instruction and the forbid-empty instruction.
func Addenda(state llm.RetryState) string {
	var out string
	if state.Strict {
		// Only the limits this phase actually carries; a zero bound means
		// the limit does not apply and must not be stated.
		limits := make([]string, 0, 3)
		if state.Budget.MaxItems > 0 {
			limits = append(limits, fmt.Sprintf("at most %d items", state.Budget.MaxItems))
		}
		if state.Budget.MaxLocations > 0 {
			limits = append(limits, fmt.Sprintf("at most %d locations per item", state.Budget.MaxLocations))
		}
		if state.Budget.MaxRationaleLen > 0 {
			limits = append(limits, fmt.Sprintf("rationale at most %d characters", state.Budget.MaxRationaleLen))
		}
		out += fmt.Sprintf(`

## Stricter Constraints

Your previous response violated the stated limits. This attempt enforces
reduced limits: %s. Stay well under every limit.`, strings.Join(limits, ", "))
	}
	if state.ForbidEmpty {
		out += `

## Empty Results Are Invalid

Your previous response contained zero items. A zero-length result is NOT a
valid answer. Return at least one item; if nothing is a perfect fit, return
the closest reasonable match and say so in its rationale.`
	}
	return out
}
