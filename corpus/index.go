package corpus

import "fmt"

// Index is the read-only similarity index over a corpus. It owns the unit
// ordering, the id to row mapping, and the pairwise score matrix. Row i
// always corresponds to Units[i]. An Index is built once per run and never
// mutated afterwards, so concurrent readers need no locking.
type Index struct {
	// Units in row order.
	Units []TextUnit

	// Rows maps unit ID to its row in Units and Scores.
	Rows map[string]int

	// Scores[i][j] is the similarity between Units[i] and Units[j],
	// in [0,1]. Symmetric; the diagonal is 1.
	Scores [][]float64

	// Method tags how the vectors behind Scores were produced
	// ("remote-embedding", "local-embedding", or "term-vector").
	Method string
}

// Link is one similarity edge between two units from different sources.
type Link struct {
	SourceUnitID string  `json:"source_unit_id"`
	TargetUnitID string  `json:"target_unit_id"`
	Score        float64 `json:"score"`
	Method       string  `json:"method"`
}

// Unit returns the unit with the given ID, or an error if it is not indexed.
func (idx *Index) Unit(id string) (TextUnit, error) {
	row, ok := idx.Rows[id]
	if !ok {
		return TextUnit{}, fmt.Errorf("unit %s not in index", id)
	}
	return idx.Units[row], nil
}

// Len returns the number of indexed units.
func (idx *Index) Len() int {
	return len(idx.Units)
}
