// Package testutil provides test utilities for the llm package.
// It includes a scripted Completer for exercising the retry protocol.
package testutil

import (
	"context"
	"sync"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// ScriptedCompleter is a thread-safe mock Completer. It returns configured
// completions in sequence and captures every request it receives.
//
// Usage:
//
//	// Truncated twice, then a valid envelope
//	mock := &testutil.ScriptedCompleter{
//	    Completions: []*llm.Completion{
//	        {StopReason: llm.StopReasonLength},
//	        {StopReason: llm.StopReasonLength},
//	        {Text: llm.EncodeEnvelope(`{"entries":[...]}`), StopReason: llm.StopReasonStop},
//	    },
//	}
type ScriptedCompleter struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
	index    int

	// Completions are returned in sequence. The last one repeats once the
	// script runs out.
	Completions []*llm.Completion

	// Err takes precedence over Completions when set.
	Err error
}

// Complete implements llm.Completer.
func (m *ScriptedCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Completions) == 0 {
		return &llm.Completion{StopReason: llm.StopReasonStop}, nil
	}

	i := m.index
	if i >= len(m.Completions) {
		i = len(m.Completions) - 1
	}
	m.index++
	return m.Completions[i], nil
}

// Requests returns a copy of all captured requests.
func (m *ScriptedCompleter) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.requests...)
}

// CallCount returns the number of Complete calls so far.
func (m *ScriptedCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears captured requests and restarts the script.
func (m *ScriptedCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.index = 0
}
