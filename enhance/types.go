// Package enhance implements the two-phase enhancement pipeline: content
// selection picks corpus excerpts worth citing, annotation produces the
// final cited text. Both phases run through the llm retry and envelope
// stack and persist their validated results in the cache.
package enhance

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// Default cardinality bounds for the two phases. These are starting
// budgets; the retry protocol tightens them between attempts.
const (
	DefaultMaxEntries      = 10
	DefaultMaxLocations    = 5
	DefaultMaxRationaleLen = 350

	DefaultSelectionOutputTokens  = 2000
	DefaultAnnotationOutputTokens = 8000
)

// SelectionBudget returns the phase-one budget with its default bounds.
func SelectionBudget(maxOutputTokens int) llm.Budget {
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultSelectionOutputTokens
	}
	return llm.Budget{
		MaxOutputTokens: maxOutputTokens,
		MaxItems:        DefaultMaxEntries,
		MaxLocations:    DefaultMaxLocations,
		MaxRationaleLen: DefaultMaxRationaleLen,
	}
}

// AnnotationBudget returns the phase-two budget. MaxItems bounds the
// provenance list; location and rationale limits do not apply.
func AnnotationBudget(maxOutputTokens int) llm.Budget {
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultAnnotationOutputTokens
	}
	return llm.Budget{
		MaxOutputTokens: maxOutputTokens,
		MaxItems:        DefaultMaxEntries,
	}
}

// SelectionEntry is one requested excerpt in a ContentRequest.
type SelectionEntry struct {
	// UnitID is the corpus unit the excerpt comes from.
	UnitID string `json:"unit_id"`

	// Rationale explains why this excerpt helps the target unit.
	Rationale string `json:"rationale"`

	// Locations optionally narrows the excerpt (section names, heading
	// paths) inside the source unit.
	Locations []string `json:"locations,omitempty"`
}

// ContentRequest is the validated phase-one result: an ordered list of
// excerpt requests. Zero entries is a failure state, never a valid success.
type ContentRequest struct {
	Entries []SelectionEntry `json:"entries"`
}

// UnmarshalPayload implements llm.Payload. It fully overwrites previous
// state so the value can be reused across retry attempts.
func (r *ContentRequest) UnmarshalPayload(data []byte) error {
	var parsed ContentRequest
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Validate implements llm.Payload, enforcing the budget's cardinality
// bounds. The returned error names the violated field and its bound.
func (r *ContentRequest) Validate(b llm.Budget) *llm.DecodeError {
	if b.MaxItems > 0 && len(r.Entries) > b.MaxItems {
		return &llm.DecodeError{Kind: llm.KindConstraintViolation, Field: "entries", Bound: b.MaxItems}
	}
	for i, e := range r.Entries {
		if e.UnitID == "" {
			return &llm.DecodeError{
				Kind:   llm.KindInvalidPayload,
				Detail: fmt.Errorf("entry %d missing unit_id", i),
			}
		}
		if b.MaxRationaleLen > 0 && len(e.Rationale) > b.MaxRationaleLen {
			return &llm.DecodeError{Kind: llm.KindConstraintViolation, Field: "rationale", Bound: b.MaxRationaleLen}
		}
		if b.MaxLocations > 0 && len(e.Locations) > b.MaxLocations {
			return &llm.DecodeError{Kind: llm.KindConstraintViolation, Field: "locations", Bound: b.MaxLocations}
		}
	}
	return nil
}

// Empty implements llm.Payload.
func (r *ContentRequest) Empty() bool {
	return len(r.Entries) == 0
}

// UnitIDs returns the requested source unit IDs in order.
func (r *ContentRequest) UnitIDs() []string {
	ids := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.UnitID
	}
	return ids
}

// markerPattern matches citation markers of the form [ref:<unit-id>].
var markerPattern = regexp.MustCompile(`\[ref:([^\]\s]+)\]`)

// Annotation is the validated phase-two result: the enhanced text with
// citation markers plus the provenance list the markers resolve against.
type Annotation struct {
	// Text is the enhanced unit text containing [ref:<unit-id>] markers.
	Text string `json:"text"`

	// Provenance lists every source unit ID cited in Text.
	Provenance []string `json:"provenance"`
}

// UnmarshalPayload implements llm.Payload.
func (a *Annotation) UnmarshalPayload(data []byte) error {
	var parsed Annotation
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Validate implements llm.Payload. Every citation marker in the text must
// resolve to a provenance entry.
func (a *Annotation) Validate(b llm.Budget) *llm.DecodeError {
	if b.MaxItems > 0 && len(a.Provenance) > b.MaxItems {
		return &llm.DecodeError{Kind: llm.KindConstraintViolation, Field: "provenance", Bound: b.MaxItems}
	}

	known := make(map[string]struct{}, len(a.Provenance))
	for _, id := range a.Provenance {
		known[id] = struct{}{}
	}
	for _, m := range markerPattern.FindAllStringSubmatch(a.Text, -1) {
		if _, ok := known[m[1]]; !ok {
			return &llm.DecodeError{
				Kind:   llm.KindInvalidPayload,
				Detail: fmt.Errorf("marker %s has no provenance entry", m[0]),
			}
		}
	}
	return nil
}

// Empty implements llm.Payload. An annotation with no text or no citations
// is never a valid terminal state.
func (a *Annotation) Empty() bool {
	return strings.TrimSpace(a.Text) == "" || len(a.Provenance) == 0
}

// Markers returns the unit IDs referenced by citation markers, in order of
// first appearance.
func (a *Annotation) Markers() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range markerPattern.FindAllStringSubmatch(a.Text, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}
