package prompts

import (
	"fmt"
	"strings"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// Candidate is one pre-filtered corpus unit offered to the selection phase.
type Candidate struct {
	Unit  corpus.TextUnit
	Score float64
}

// SelectionSystem returns the system prompt for the content selection phase.
func SelectionSystem() string {
	return `You are a technical editor selecting reference material. Given a target
chapter and a list of candidate chapters from companion sources, you choose
which candidates contain material worth citing in the target. You select
only candidates with a concrete, specific connection to the target; you
never pad the list.`
}

// Selection builds the phase-one user prompt for one target unit.
func Selection(unit corpus.TextUnit, candidates []Candidate, state llm.RetryState) string {
	var b strings.Builder

	fmt.Fprintf(&b, `## Target Chapter

ID: %s
Title: %s

%s

## Candidate Chapters

`, unit.ID, unit.Title, truncateText(unit.Text, 6000))

	for i, c := range candidates {
		fmt.Fprintf(&b, "### Candidate %d\nID: %s\nTitle: %s\nSimilarity: %.2f\n", i+1, c.Unit.ID, c.Unit.Title, c.Score)
		if c.Unit.Summary.Abstract != "" {
			fmt.Fprintf(&b, "Abstract: %s\n", c.Unit.Summary.Abstract)
		}
		if len(c.Unit.Summary.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(c.Unit.Summary.Keywords, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `## Task

Select the candidates whose material should be cited in the target chapter.
For each selection give the candidate's ID, a rationale (at most %d
characters) naming the specific connection, and optionally up to %d
locations (section titles or concepts) to pull from. Select at most %d
candidates. Only use IDs from the candidate list above.

Respond with JSON of this shape:

{"entries": [{"unit_id": "...", "rationale": "...", "locations": ["..."]}]}

%s%s`,
		state.Budget.MaxRationaleLen, state.Budget.MaxLocations, state.Budget.MaxItems,
		EnvelopeContract(), Addenda(state))

	return b.String()
}

// truncateText bounds the target text included in a prompt so the input
// side stays inside the context window.
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "\n[... text truncated ...]"
}
