package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
	_ "github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm/providers"
)

func openAIStyleResponse(content, finishReason string, tokens int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": finishReason,
			},
		},
		"usage": map[string]any{"completion_tokens": tokens},
	}
}

func TestHTTPCompleter_Complete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		json.NewEncoder(w).Encode(openAIStyleResponse("generated text", "stop", 42))
	}))
	defer srv.Close()

	completer, err := llm.NewHTTPCompleter("ollama", srv.URL, "test-model")
	require.NoError(t, err)

	comp, err := completer.Complete(context.Background(), llm.CompletionRequest{
		System:          "system prompt",
		Prompt:          "user prompt",
		MaxOutputTokens: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated text", comp.Text)
	assert.Equal(t, 42, comp.OutputTokens)
	assert.Equal(t, llm.StopReasonStop, comp.StopReason)

	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, float64(500), gotBody["max_tokens"])
}

func TestHTTPCompleter_LengthStopNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIStyleResponse("cut off mid", "length", 500))
	}))
	defer srv.Close()

	completer, err := llm.NewHTTPCompleter("ollama", srv.URL, "test-model")
	require.NoError(t, err)

	comp, err := completer.Complete(context.Background(), llm.CompletionRequest{Prompt: "p", MaxOutputTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, llm.StopReasonLength, comp.StopReason)
}

func TestHTTPCompleter_ErrorClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		completer, err := llm.NewHTTPCompleter("ollama", srv.URL, "test-model")
		require.NoError(t, err)

		_, err = completer.Complete(context.Background(), llm.CompletionRequest{Prompt: "p", MaxOutputTokens: 10})
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.wantTransient, llm.IsTransient(err), "status %d", tt.status)
		assert.Equal(t, !tt.wantTransient, llm.IsFatal(err), "status %d", tt.status)
		srv.Close()
	}
}

func TestHTTPCompleter_CallTimeoutReportsTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	completer, err := llm.NewHTTPCompleter("ollama", srv.URL, "test-model",
		llm.WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	comp, err := completer.Complete(context.Background(), llm.CompletionRequest{Prompt: "p", MaxOutputTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, llm.StopReasonLength, comp.StopReason)
	assert.Empty(t, comp.Text)
}

func TestHTTPCompleter_ParentCancellationIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only detects the client disconnect once the request
		// body has been consumed; without this drain the handler never
		// unblocks and srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	completer, err := llm.NewHTTPCompleter("ollama", srv.URL, "test-model")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = completer.Complete(ctx, llm.CompletionRequest{Prompt: "p", MaxOutputTokens: 10})
	assert.Error(t, err)
}

func TestNewHTTPCompleter_UnknownProvider(t *testing.T) {
	_, err := llm.NewHTTPCompleter("no-such-provider", "", "model")
	assert.Error(t, err)
}
