package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nous-labs/switchboard/internal/llm"
)

// DefaultModel is used by the fallback when none is configured.
const DefaultModel = "llama3.2"

// ErrorPrefix starts every failure diagnostic returned as outcome text.
const ErrorPrefix = "Error: "

// Config configures a Router.
type Config struct {
	Backend      llm.Backend
	DefaultModel string
	// Handlers are tried in order; the first that accepts a task wins.
	Handlers []Handler
}

// Router dispatches tasks to handlers. It is safe for concurrent use and
// holds no mutable state after construction.
type Router struct {
	handlers []Handler
	fallback *GenericHandler
	backend  string
}

// New validates cfg and builds a router.
func New(cfg Config) (*Router, error) {
	if cfg.Backend == nil {
		return nil, errors.New("router: backend is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	seen := make(map[string]bool, len(cfg.Handlers))
	handlers := make([]Handler, 0, len(cfg.Handlers))
	for i, h := range cfg.Handlers {
		if h == nil {
			return nil, fmt.Errorf("router: handler %d is nil", i)
		}
		if seen[h.Name()] {
			return nil, fmt.Errorf("router: duplicate handler %q", h.Name())
		}
		seen[h.Name()] = true
		handlers = append(handlers, h)
	}

	return &Router{
		handlers: handlers,
		fallback: NewGenericHandler(cfg.Backend, cfg.DefaultModel),
		backend:  cfg.Backend.Name(),
	}, nil
}

// Select returns the first handler accepting task, or nil when none does.
func (r *Router) Select(task Task) Handler {
	for _, h := range r.handlers {
		if Accepts(task, h) {
			return h
		}
	}
	return nil
}

// Handlers lists the registered handlers in dispatch order. The fallback is
// not included.
func (r *Router) Handlers() []HandlerInfo {
	out := make([]HandlerInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, HandlerInfo{
			Name:        h.Name(),
			Kind:        h.Kind().String(),
			Description: h.Description(),
			Keywords:    append([]string(nil), h.Keywords()...),
		})
	}
	return out
}

type result struct {
	text string
	err  error
}

// Route runs task through the first accepting handler, or the fallback
// completion. It always returns an Outcome with text; failures are turned
// into diagnostics and never escape as errors or panics. Route returns as
// soon as ctx is done even if the handler has not.
func (r *Router) Route(ctx context.Context, task Task) Outcome {
	start := time.Now()
	out := Outcome{TaskID: uuid.New().String()[:8]}

	var h Handler = r.fallback
	if sel := r.Select(task); sel != nil {
		h = sel
		out.Matched = true
	}
	out.Handler = h.Name()
	out.Kind = h.Kind()

	log := slog.With("task_id", out.TaskID, "handler", out.Handler)

	if err := ctx.Err(); err != nil {
		r.fail(ctx, &out, err)
		out.Elapsed = time.Since(start)
		log.Info("task cancelled before dispatch")
		return out
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("handler %s panicked: %v", h.Name(), p)}
			}
		}()
		text, err := h.Execute(ctx, task)
		done <- result{text: text, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}

	out.Elapsed = time.Since(start)
	if res.err != nil {
		r.fail(ctx, &out, res.err)
		log.Warn("task failed", "code", out.Code, "elapsed", out.Elapsed, "error", res.err)
		return out
	}

	out.Text = res.text
	log.Debug("task routed", "matched", out.Matched, "elapsed", out.Elapsed)
	return out
}

// RouteText is Route reduced to its text.
func (r *Router) RouteText(ctx context.Context, text string, taskContext map[string]string) string {
	return r.Route(ctx, Task{Text: text, Context: taskContext}).Text
}

func (r *Router) fail(ctx context.Context, out *Outcome, err error) {
	out.Err = err
	out.Code = classify(ctx, err)
	out.Text = r.diagnose(out.Code, err)
}

// classify maps an execution error to an ErrorCode. A context error only
// counts as cancellation when the caller's context is actually done.
func classify(ctx context.Context, err error) ErrorCode {
	switch {
	case errors.Is(err, llm.ErrCancelled):
		return CodeCancelled
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return CodeCancelled
	case errors.Is(err, llm.ErrBackendUnavailable):
		return CodeBackendUnavailable
	case errors.Is(err, llm.ErrMalformedResponse):
		return CodeMalformedResponse
	default:
		return CodeInternal
	}
}

func (r *Router) diagnose(code ErrorCode, err error) string {
	backend, where := r.backend, ""
	var be *llm.BackendError
	if errors.As(err, &be) {
		if be.Backend != "" {
			backend = be.Backend
		}
		if be.BaseURL != "" {
			where = " at " + be.BaseURL
		}
	}

	var msg string
	switch code {
	case CodeCancelled:
		msg = "request cancelled before the backend responded."
	case CodeBackendUnavailable:
		msg = fmt.Sprintf("could not reach the %s backend%s (%s). Please check the backend service is running.", backend, where, errSummary(err))
	case CodeMalformedResponse:
		msg = fmt.Sprintf("the %s backend%s returned an unreadable response (%s). Please check the backend service and model.", backend, where, errSummary(err))
	default:
		msg = fmt.Sprintf("the request could not be completed (%s).", errSummary(err))
	}
	return ErrorPrefix + msg
}

func errSummary(err error) string {
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if n := 200; len(s) > n {
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	return s
}

// GenericHandler sends the task text to the backend unchanged. The router
// uses it when no registered handler accepts a task.
type GenericHandler struct {
	backend llm.Backend
	model   string
}

// NewGenericHandler creates the fallback handler.
func NewGenericHandler(backend llm.Backend, model string) *GenericHandler {
	if model == "" {
		model = DefaultModel
	}
	return &GenericHandler{backend: backend, model: model}
}

func (h *GenericHandler) Name() string        { return "general" }
func (h *GenericHandler) Kind() Kind          { return KindGeneric }
func (h *GenericHandler) Keywords() Keywords  { return nil }
func (h *GenericHandler) Description() string { return "Plain completion with the default model" }

func (h *GenericHandler) Execute(ctx context.Context, task Task) (string, error) {
	resp, err := h.backend.Complete(ctx, llm.CompletionRequest{Prompt: task.Text, Model: h.model})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
