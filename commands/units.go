package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
)

// unitFile is the boundary format produced by the document-preparation
// step: extracted units with their statistical summaries. This engine does
// no text extraction of its own.
type unitFile struct {
	Units []corpus.TextUnit `json:"units"`
}

// loadUnits reads one units JSON file.
func loadUnits(path string) ([]corpus.TextUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read units file: %w", err)
	}

	var f unitFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse units file %s: %w", path, err)
	}
	if len(f.Units) == 0 {
		return nil, fmt.Errorf("units file %s contains no units", path)
	}
	for i, u := range f.Units {
		if u.ID == "" || u.SourceID == "" {
			return nil, fmt.Errorf("unit %d in %s missing id or source_id", i, path)
		}
	}
	return f.Units, nil
}

// loadCorpus reads the target document units plus companion corpora and
// returns (targets, all units).
func loadCorpus(targetPath string, companionPaths []string) (targets, all []corpus.TextUnit, err error) {
	targets, err = loadUnits(targetPath)
	if err != nil {
		return nil, nil, err
	}
	all = append(all, targets...)
	for _, p := range companionPaths {
		companions, err := loadUnits(p)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, companions...)
	}
	return targets, all, nil
}

// filterSelection reduces targets to the 1-based indices in literal.
func filterSelection(targets []corpus.TextUnit, literal string) ([]corpus.TextUnit, error) {
	if literal == "" {
		return targets, nil
	}
	indices, err := ParseSelection(literal)
	if err != nil {
		return nil, err
	}
	out := make([]corpus.TextUnit, 0, len(indices))
	for _, i := range indices {
		if i > len(targets) {
			return nil, fmt.Errorf("selection index %d exceeds %d units", i, len(targets))
		}
		out = append(out, targets[i-1])
	}
	return out, nil
}
