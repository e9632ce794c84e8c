package llm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

var testBudget = llm.Budget{
	MaxOutputTokens: 1000,
	MaxItems:        3,
	MaxRationaleLen: 20,
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	comp := &llm.Completion{
		Text:       llm.EncodeEnvelope(`{"items": ["a", "b"]}`),
		StopReason: llm.StopReasonStop,
	}

	var p listPayload
	derr := llm.DecodeEnvelope(comp, testBudget, &p)
	require.Nil(t, derr)
	assert.Equal(t, []string{"a", "b"}, p.Items)
}

func TestDecode_TruncatedShortCircuits(t *testing.T) {
	// Even a perfectly formed envelope must not be parsed when the stop
	// reason says the output was cut off.
	comp := &llm.Completion{
		Text:       llm.EncodeEnvelope(`{"items": ["a"]}`),
		StopReason: llm.StopReasonLength,
	}

	var p listPayload
	derr := llm.DecodeEnvelope(comp, testBudget, &p)
	require.NotNil(t, derr)
	assert.Equal(t, llm.KindTruncated, derr.Kind)
	assert.Empty(t, p.Items)
}

func TestDecode_MissingMarkers(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no markers", `{"items": ["a"]}`},
		{"missing end", llm.BeginMarker + "\n" + `{"items": ["a"]}`},
		{"missing begin", `{"items": ["a"]}` + "\n" + llm.EndMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p listPayload
			derr := llm.DecodeEnvelope(&llm.Completion{Text: tt.text, StopReason: llm.StopReasonStop}, testBudget, &p)
			require.NotNil(t, derr)
			assert.Equal(t, llm.KindMalformedEnvelope, derr.Kind)
		})
	}
}

func TestDecode_IntegrityMismatch(t *testing.T) {
	text := "DIGEST: sha256:" + strings.Repeat("0", 64) + "\n" +
		llm.BeginMarker + "\n" + `{"items": ["a"]}` + "\n" + llm.EndMarker

	var p listPayload
	derr := llm.DecodeEnvelope(&llm.Completion{Text: text, StopReason: llm.StopReasonStop}, testBudget, &p)
	require.NotNil(t, derr)
	assert.Equal(t, llm.KindIntegrityMismatch, derr.Kind)
}

func TestDecode_MissingDigestIsAccepted(t *testing.T) {
	text := llm.BeginMarker + "\n" + `{"items": ["a"]}` + "\n" + llm.EndMarker

	var p listPayload
	derr := llm.DecodeEnvelope(&llm.Completion{Text: text, StopReason: llm.StopReasonStop}, testBudget, &p)
	assert.Nil(t, derr)
}

func TestDecode_InvalidPayload(t *testing.T) {
	comp := &llm.Completion{
		Text:       llm.EncodeEnvelope(`{"items": [unquoted]}`),
		StopReason: llm.StopReasonStop,
	}

	var p listPayload
	derr := llm.DecodeEnvelope(comp, testBudget, &p)
	require.NotNil(t, derr)
	assert.Equal(t, llm.KindInvalidPayload, derr.Kind)
}

func TestDecode_ConstraintViolationNamesField(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
		wantBound int
	}{
		{"too many items", `{"items": ["a", "b", "c", "d"]}`, "items", 3},
		{"item too long", `{"items": ["this item is far longer than twenty characters"]}`, "item", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := &llm.Completion{Text: llm.EncodeEnvelope(tt.payload), StopReason: llm.StopReasonStop}
			var p listPayload
			derr := llm.DecodeEnvelope(comp, testBudget, &p)
			require.NotNil(t, derr)
			assert.Equal(t, llm.KindConstraintViolation, derr.Kind)
			assert.Equal(t, tt.wantField, derr.Field)
			assert.Equal(t, tt.wantBound, derr.Bound)
		})
	}
}

func TestDecode_EmptyResult(t *testing.T) {
	comp := &llm.Completion{
		Text:       llm.EncodeEnvelope(`{"items": []}`),
		StopReason: llm.StopReasonStop,
	}

	var p listPayload
	derr := llm.DecodeEnvelope(comp, testBudget, &p)
	require.NotNil(t, derr)
	assert.Equal(t, llm.KindEmptyResult, derr.Kind)
}

func TestDecode_SurroundingProseIsIgnored(t *testing.T) {
	comp := &llm.Completion{
		Text: "Here is my response:\n\n" +
			llm.EncodeEnvelope(`{"items": ["a"]}`) +
			"\nLet me know if you need anything else.",
		StopReason: llm.StopReasonStop,
	}

	var p listPayload
	derr := llm.DecodeEnvelope(comp, testBudget, &p)
	require.Nil(t, derr)
	assert.Equal(t, []string{"a"}, p.Items)
}
