package prompts

import (
	"fmt"
	"strings"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// Excerpt is resolved source text for one selected unit, supplied by the
// excerpt-resolution collaborator.
type Excerpt struct {
	UnitID string
	Title  string
	Text   string
}

// AnnotationSystem returns the system prompt for the annotation phase.
func AnnotationSystem() string {
	return `You are a technical editor enhancing guideline text with citations and
explanatory annotations. You weave short annotations into the chapter where
the reference material genuinely clarifies or extends it, each followed by a
citation marker. You never fabricate citations and you never alter the
meaning of the original text.`
}

// Annotation builds the phase-two user prompt for one target unit and its
// resolved excerpts.
func Annotation(unit corpus.TextUnit, excerpts []Excerpt, state llm.RetryState) string {
	var b strings.Builder

	fmt.Fprintf(&b, `## Chapter To Enhance

ID: %s
Title: %s

%s

## Reference Excerpts

`, unit.ID, unit.Title, truncateText(unit.Text, 12000))

	for i, e := range excerpts {
		fmt.Fprintf(&b, "### Excerpt %d (unit %s)\nTitle: %s\n\n%s\n\n", i+1, e.UnitID, e.Title, truncateText(e.Text, 4000))
	}

	fmt.Fprintf(&b, `## Task

Produce the enhanced chapter text. Where a reference excerpt clarifies or
extends a passage, add a brief annotation followed by a citation marker of
the form [ref:<unit-id>], using the excerpt's unit ID. Keep the original
text intact apart from inserted annotations. Cite at most %d distinct
units, and list every cited unit ID in the provenance array. Every marker
in the text MUST have a matching provenance entry.

Respond with JSON of this shape:

{"text": "...enhanced chapter with [ref:...] markers...", "provenance": ["unit-id", "..."]}

%s%s`,
		state.Budget.MaxItems, EnvelopeContract(), Addenda(state))

	return b.String()
}
