package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexText(t *testing.T) {
	u := TextUnit{
		ID:    "ch1",
		Title: "Concurrency Patterns",
		Text:  "a very long body that must not be indexed",
		Summary: Summary{
			Abstract: "Patterns for structuring concurrent Go programs.",
			Keywords: []string{"goroutine", "channel"},
			Concepts: []string{"fan-out", "pipeline"},
		},
	}

	text := u.IndexText()
	assert.Contains(t, text, "Concurrency Patterns")
	assert.Contains(t, text, "Patterns for structuring concurrent Go programs.")
	assert.Contains(t, text, "goroutine channel")
	assert.Contains(t, text, "fan-out pipeline")
	assert.NotContains(t, text, "long body")
}

func TestIndexText_SkipsEmptyParts(t *testing.T) {
	u := TextUnit{ID: "ch1", Title: "Only A Title"}
	assert.Equal(t, "Only A Title", u.IndexText())
}

func TestIndex_Unit(t *testing.T) {
	idx := &Index{
		Units: []TextUnit{{ID: "a"}, {ID: "b"}},
		Rows:  map[string]int{"a": 0, "b": 1},
	}

	u, err := idx.Unit("b")
	require.NoError(t, err)
	assert.Equal(t, "b", u.ID)

	_, err = idx.Unit("missing")
	assert.Error(t, err)
	assert.Equal(t, 2, idx.Len())
}
