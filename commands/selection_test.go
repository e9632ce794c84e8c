package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/corpus"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		literal string
		want    []int
		wantErr bool
	}{
		{literal: "1", want: []int{1}},
		{literal: "1,3,5", want: []int{1, 3, 5}},
		{literal: "1-4", want: []int{1, 2, 3, 4}},
		{literal: "1-3,7,10-12", want: []int{1, 2, 3, 7, 10, 11, 12}},
		{literal: "3,1,2", want: []int{1, 2, 3}},
		{literal: "2,2,2-3", want: []int{2, 3}},
		{literal: " 1,2 ", want: []int{1, 2}},
		{literal: "", wantErr: true},
		{literal: "0", wantErr: true},
		{literal: "-1", wantErr: true},
		{literal: "3-1", wantErr: true},
		{literal: "1;2", wantErr: true},
		{literal: "1,", wantErr: true},
		{literal: "a-b", wantErr: true},
		{literal: "1-2-3", wantErr: true},
		{literal: "$(rm -rf /)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.literal, func(t *testing.T) {
			got, err := ParseSelection(tt.literal)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterSelection(t *testing.T) {
	targets := []corpus.TextUnit{
		{ID: "u1", SourceID: "s"},
		{ID: "u2", SourceID: "s"},
		{ID: "u3", SourceID: "s"},
	}

	// Empty selection keeps everything.
	all, err := filterSelection(targets, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	picked, err := filterSelection(targets, "1,3")
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "u1", picked[0].ID)
	assert.Equal(t, "u3", picked[1].ID)

	_, err = filterSelection(targets, "4")
	assert.Error(t, err)
}

func writeUnitsFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadUnits(t *testing.T) {
	path := writeUnitsFile(t, "units.json", `{
		"units": [
			{"id": "ch1", "source_id": "book", "title": "One", "text": "body"},
			{"id": "ch2", "source_id": "book", "title": "Two", "text": "body"}
		]
	}`)

	units, err := loadUnits(path)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "ch1", units[0].ID)
	assert.Equal(t, "book", units[1].SourceID)
}

func TestLoadUnits_Rejections(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := loadUnits(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("empty unit list", func(t *testing.T) {
		path := writeUnitsFile(t, "empty.json", `{"units": []}`)
		_, err := loadUnits(path)
		assert.Error(t, err)
	})

	t.Run("unit without id", func(t *testing.T) {
		path := writeUnitsFile(t, "bad.json", `{"units": [{"source_id": "book"}]}`)
		_, err := loadUnits(path)
		assert.Error(t, err)
	})
}

func TestLoadCorpus(t *testing.T) {
	target := writeUnitsFile(t, "target.json",
		`{"units": [{"id": "t1", "source_id": "target-book"}]}`)
	companion := writeUnitsFile(t, "companion.json",
		`{"units": [{"id": "c1", "source_id": "companion-book"}, {"id": "c2", "source_id": "companion-book"}]}`)

	targets, all, err := loadCorpus(target, []string{companion})
	require.NoError(t, err)
	assert.Len(t, targets, 1)
	assert.Len(t, all, 3)
	assert.Equal(t, "t1", all[0].ID)
}
