package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicBackend implements Backend for Claude and Anthropic-compatible APIs.
// Model identifiers from the router are passed through unchanged, so the
// models.* configuration must name Anthropic models when this backend is used.
type AnthropicBackend struct {
	client  *anthropic.Client
	baseURL string
	timeout time.Duration
}

// NewAnthropic creates an Anthropic backend. baseURL may be empty for the
// public API. Retries are disabled: one attempt per call.
func NewAnthropic(apiKey, baseURL string, timeout time.Duration) *AnthropicBackend {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicBackend{
		client:  &client,
		baseURL: baseURL,
		timeout: timeout,
	}
}

func (p *AnthropicBackend) Name() string { return "anthropic" }

func (p *AnthropicBackend) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Deterministic {
		params.Temperature = anthropic.Float(0)
	}

	message, err := p.client.Messages.New(ctx, params,
		option.WithRequestTimeout(p.timeout),
	)
	if err != nil {
		return nil, p.classify(ctx, err)
	}

	var content string
	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += textBlock.Text
		}
	}
	if len(message.Content) == 0 {
		return nil, &BackendError{
			Kind:    KindMalformed,
			Backend: p.Name(),
			BaseURL: p.baseURL,
			Message: "message has no content blocks",
		}
	}

	slog.Debug("anthropic completion",
		"model", string(message.Model),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
	)

	return &CompletionResponse{
		Content: content,
		Model:   string(message.Model),
	}, nil
}

// IsAvailable lists models as a liveness probe.
func (p *AnthropicBackend) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	return err == nil
}

// classify maps SDK errors onto the backend taxonomy.
func (p *AnthropicBackend) classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &BackendError{
			Kind:       KindUnavailable,
			Backend:    p.Name(),
			BaseURL:    p.baseURL,
			StatusCode: apiErr.StatusCode,
			Message:    "api error",
			Err:        err,
		}
	}
	return transportError(ctx, p.Name(), p.baseURL, err)
}
