package commands

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// selectionPattern accepts only comma-separated positive integers and
// ascending ranges, e.g. "1-3,7,10-12". Anything else is rejected; the
// selection is never evaluated as code.
var selectionPattern = regexp.MustCompile(`^\d+(-\d+)?(,\d+(-\d+)?)*$`)

// ParseSelection parses a 1-based unit selection literal into a sorted,
// deduplicated list of indices.
func ParseSelection(literal string) ([]int, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, fmt.Errorf("empty selection")
	}
	if !selectionPattern.MatchString(literal) {
		return nil, fmt.Errorf("invalid selection %q: expected ranges and indices like 1-3,7", literal)
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(literal, ",") {
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func parseRange(part string) (lo, hi int, err error) {
	if idx := strings.IndexByte(part, '-'); idx >= 0 {
		lo, err = strconv.Atoi(part[:idx])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range %q: %w", part, err)
		}
		hi, err = strconv.Atoi(part[idx+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range %q: %w", part, err)
		}
		if lo < 1 || hi < lo {
			return 0, 0, fmt.Errorf("invalid range %q: bounds must be ascending and positive", part)
		}
		return lo, hi, nil
	}

	lo, err = strconv.Atoi(part)
	if err != nil || lo < 1 {
		return 0, 0, fmt.Errorf("invalid index %q", part)
	}
	return lo, lo, nil
}
