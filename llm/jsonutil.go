package llm

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for cleaning JSON payloads out of LLM output.
var (
	// fencePattern matches JSON wrapped in a markdown code fence.
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\s*```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// CleanPayload normalizes a payload span before JSON parsing. Models wrap
// payloads in markdown fences and emit JavaScript-style comments and
// trailing commas even when told not to; all three are stripped here so
// only genuine syntax errors surface as InvalidPayload.
func CleanPayload(span string) string {
	if matches := fencePattern.FindStringSubmatch(span); len(matches) > 1 {
		span = matches[1]
	}

	lines := strings.Split(span, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")

	return trailingCommaPattern.ReplaceAllString(result, "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string
// values so URLs survive intact.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
