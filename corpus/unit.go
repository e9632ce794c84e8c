// Package corpus defines the text unit data model shared by the similarity
// engine and the enhancement pipeline. Units are produced by an external
// document-preparation step and are immutable once loaded.
package corpus

import "strings"

// Summary holds the externally supplied statistical summary for a unit.
type Summary struct {
	Keywords []string `json:"keywords,omitempty"`
	Concepts []string `json:"concepts,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
}

// TextUnit is one addressable chunk of source text (typically a chapter).
type TextUnit struct {
	// ID uniquely identifies the unit across all loaded sources.
	ID string `json:"id"`

	// SourceID identifies the document the unit was extracted from.
	// Units sharing a SourceID are never cross-referenced to each other.
	SourceID string `json:"source_id"`

	Title   string  `json:"title"`
	Text    string  `json:"text"`
	Summary Summary `json:"summary"`
}

// IndexText returns the text the similarity engine vectorizes for this unit:
// title, abstract, keywords and concepts, not the full body. The summary is
// the statistical distillation of the body, so indexing it keeps vocabulary
// size bounded on large corpora.
func (u TextUnit) IndexText() string {
	parts := make([]string, 0, 4)
	if u.Title != "" {
		parts = append(parts, u.Title)
	}
	if u.Summary.Abstract != "" {
		parts = append(parts, u.Summary.Abstract)
	}
	if len(u.Summary.Keywords) > 0 {
		parts = append(parts, strings.Join(u.Summary.Keywords, " "))
	}
	if len(u.Summary.Concepts) > 0 {
		parts = append(parts, strings.Join(u.Summary.Concepts, " "))
	}
	return strings.Join(parts, "\n")
}
