// Package router classifies a task, dispatches it to the first handler
// whose keywords it contains, and falls back to a plain completion when no
// handler accepts it.
package router

import (
	"context"
	"time"
)

// Task is one routed request: free text plus optional key/value context
// (for example "code", "error", "language").
type Task struct {
	Text    string            `json:"task"`
	Context map[string]string `json:"context,omitempty"`
}

// Value returns the context value for key, or "" when absent.
func (t Task) Value(key string) string {
	if t.Context == nil {
		return ""
	}
	return t.Context[key]
}

// Kind discriminates the closed set of handler variants.
type Kind int

const (
	KindGeneric Kind = iota
	KindCode
	KindSystem
	KindProject
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindSystem:
		return "system"
	case KindProject:
		return "project"
	default:
		return "generic"
	}
}

// Handler is implemented by every handler variant.
type Handler interface {
	Name() string
	Kind() Kind
	Description() string
	Keywords() Keywords

	// Execute runs the task. Backend errors are returned unmodified.
	Execute(ctx context.Context, task Task) (string, error)
}

// HandlerInfo describes a registered handler (for listings).
type HandlerInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// ErrorCode is the programmatic form of a routing failure.
type ErrorCode string

const (
	CodeNone               ErrorCode = ""
	CodeBackendUnavailable ErrorCode = "backend_unavailable"
	CodeMalformedResponse  ErrorCode = "malformed_response"
	CodeCancelled          ErrorCode = "cancelled"
	CodeInternal           ErrorCode = "internal"
)

// Outcome is the result of routing one task. Text is always set; on failure
// it carries a diagnostic and Code says what went wrong.
type Outcome struct {
	TaskID  string        `json:"task_id"`
	Text    string        `json:"content"`
	Handler string        `json:"handler"`
	Kind    Kind          `json:"-"`
	Matched bool          `json:"matched"`
	Code    ErrorCode     `json:"code,omitempty"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"-"`
}

// Failed reports whether routing ended in an error.
func (o Outcome) Failed() bool { return o.Code != CodeNone }
