package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultOllamaURL is the local Ollama server address.
	DefaultOllamaURL = "http://localhost:11434"

	defaultRequestTimeout = 2 * time.Minute
	probeTimeout          = 5 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 32 << 20
)

// OllamaClient talks to an Ollama server's generate API.
type OllamaClient struct {
	baseURL string
	timeout time.Duration
	maxBody int
	client  *http.Client
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithHTTPClient replaces the pooled HTTP client (tests, custom transports).
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaClient) { o.client = c }
}

// WithRequestTimeout bounds each Complete call. Zero keeps the default.
func WithRequestTimeout(d time.Duration) OllamaOption {
	return func(o *OllamaClient) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewOllama creates a new Ollama client. The underlying http.Client carries
// no global timeout; every call gets its own deadline instead.
func NewOllama(baseURL string, opts ...OllamaOption) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	o := &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultRequestTimeout,
		maxBody: maxResponseBytes,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OllamaClient) Name() string { return "ollama" }

// BaseURL returns the server address (for diagnostics).
func (o *OllamaClient) BaseURL() string { return o.baseURL }

// generateRequest is the /api/generate request body.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the non-streaming /api/generate response.
type generateResponse struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// Complete sends the prompt to /api/generate and returns the generated text.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
	}
	if req.Deterministic {
		body.Options = map[string]any{"temperature": 0, "seed": 0}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	respBody, err := o.doRequest(ctx, callCtx, http.MethodPost, "/api/generate", payload)
	if err != nil {
		return nil, err
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return nil, &BackendError{
			Kind:    KindMalformed,
			Backend: o.Name(),
			BaseURL: o.baseURL,
			Message: "parse generate response",
			Err:     err,
		}
	}
	if gen.Response == nil {
		return nil, &BackendError{
			Kind:    KindMalformed,
			Backend: o.Name(),
			BaseURL: o.baseURL,
			Message: fmt.Sprintf("generate response has no %q field: %s", "response", truncateStr(string(respBody), 200)),
		}
	}

	slog.Debug("ollama completion",
		"model", req.Model,
		"prompt_len", len(req.Prompt),
		"response_len", len(*gen.Response),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	model := gen.Model
	if model == "" {
		model = req.Model
	}
	return &CompletionResponse{Content: *gen.Response, Model: model}, nil
}

// IsAvailable checks if the Ollama server answers its models listing.
func (o *OllamaClient) IsAvailable(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := o.doRequest(ctx, callCtx, http.MethodGet, "/api/tags", nil)
	return err == nil
}

// --- HTTP helpers ---

// doRequest performs one round trip on callCtx. parent is the caller's
// context, used only to tell cancellation apart from unavailability.
func (o *OllamaClient) doRequest(parent, callCtx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, method, o.baseURL+path, bodyReader)
	if err != nil {
		return nil, &BackendError{
			Kind:    KindUnavailable,
			Backend: o.Name(),
			BaseURL: o.baseURL,
			Message: "invalid base URL",
			Err:     err,
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, transportError(parent, o.Name(), o.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, int64(o.maxBody)+1))
	if err != nil {
		return nil, transportError(parent, o.Name(), o.baseURL, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{
			Kind:       KindUnavailable,
			Backend:    o.Name(),
			BaseURL:    o.baseURL,
			StatusCode: resp.StatusCode,
			Message:    truncateStr(strings.TrimSpace(string(respBody)), 200),
		}
	}

	if len(respBody) > o.maxBody {
		return nil, &BackendError{
			Kind:    KindMalformed,
			Backend: o.Name(),
			BaseURL: o.baseURL,
			Message: fmt.Sprintf("response exceeds %d bytes", o.maxBody),
		}
	}

	return respBody, nil
}

// truncateStr cuts s to at most n bytes without splitting a rune.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
