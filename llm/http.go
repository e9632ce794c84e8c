package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// HTTPCompleter implements Completer over a registered provider adapter.
// One instance serves one provider+model endpoint.
type HTTPCompleter struct {
	provider    string
	baseURL     string
	model       string
	callTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// HTTPOption configures an HTTPCompleter.
type HTTPOption func(*HTTPCompleter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPCompleter) {
		h.httpClient = c
	}
}

// WithCallTimeout sets the per-call timeout. Expiry is reported as a
// length-limited stop, not an error, since a timed-out generation is
// indistinguishable from a truncated one for the caller.
func WithCallTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPCompleter) {
		h.callTimeout = d
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPCompleter) {
		h.logger = logger
	}
}

// NewHTTPCompleter creates a completer for the named registered provider.
func NewHTTPCompleter(provider, baseURL, model string, opts ...HTTPOption) (*HTTPCompleter, error) {
	if GetProvider(provider) == nil {
		return nil, fmt.Errorf("unknown provider: %s (registered: %v)", provider, ListProviders())
	}

	h := &HTTPCompleter{
		provider:    provider,
		baseURL:     baseURL,
		model:       model,
		callTimeout: 180 * time.Second, // Allow time for LLM responses
		httpClient:  &http.Client{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Complete executes a single HTTP request against the provider endpoint.
func (h *HTTPCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	provider := GetProvider(h.provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", h.provider))
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if h.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, h.callTimeout)
		defer cancel()
	}

	url := provider.BuildURL(h.baseURL)
	body, err := provider.BuildRequestBody(h.model, req.System, req.Prompt, req.MaxOutputTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	requestID := uuid.NewString()
	h.logger.Debug("Sending LLM request",
		"request_id", requestID,
		"provider", h.provider,
		"model", h.model,
		"url", url,
		"max_output_tokens", req.MaxOutputTokens)

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	provider.SetHeaders(httpReq)

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		// The per-call timeout expiring while the parent context is still
		// live is treated as a truncated generation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &Completion{StopReason: StopReasonLength}, nil
		}
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseCompletion(respBody)
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		// Bad requests are fatal
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}
