// Package llm provides the completion backend contract and its
// implementations (Ollama over HTTP, Anthropic via the official SDK).
package llm

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest holds parameters for a single completion call.
type CompletionRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`

	// Deterministic asks the backend for reproducible output (temperature 0).
	Deterministic bool `json:"deterministic,omitempty"`
}

// CompletionResponse holds the backend's generated text.
type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// Backend is the interface for text-completion services.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the backend identifier (e.g., "ollama", "anthropic").
	Name() string

	// Complete sends one completion request. There are no internal retries.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable is a lightweight liveness probe.
	IsAvailable(ctx context.Context) bool
}

// ErrorKind classifies backend failures.
type ErrorKind int

const (
	KindUnavailable ErrorKind = iota + 1 // connection failure or non-2xx status
	KindMalformed                        // response body did not have the expected shape
	KindCancelled                        // caller cancelled or its deadline passed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "backend_unavailable"
	case KindMalformed:
		return "malformed_response"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against *BackendError.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrMalformedResponse  = errors.New("malformed backend response")
	ErrCancelled          = errors.New("backend call cancelled")
)

// BackendError represents a failed completion or probe.
type BackendError struct {
	Kind       ErrorKind
	Backend    string
	BaseURL    string
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
	}
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackendUnavailable:
		return e.Kind == KindUnavailable
	case ErrMalformedResponse:
		return e.Kind == KindMalformed
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

// KindOf returns the kind of a backend error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

// transportError classifies a failed round trip. ctx is the caller's
// context: if it is done the call was cancelled, anything else (including
// the per-request timeout) counts as the backend being unreachable.
func transportError(ctx context.Context, backend, baseURL string, err error) *BackendError {
	if ctx.Err() != nil {
		return &BackendError{
			Kind:    KindCancelled,
			Backend: backend,
			BaseURL: baseURL,
			Message: "request cancelled",
			Err:     ctx.Err(),
		}
	}
	return &BackendError{
		Kind:    KindUnavailable,
		Backend: backend,
		BaseURL: baseURL,
		Message: "request failed",
		Err:     err,
	}
}
