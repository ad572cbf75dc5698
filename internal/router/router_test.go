package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/nous-labs/switchboard/internal/llm"
	"github.com/nous-labs/switchboard/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend records requests. When wait is set, Complete blocks until ctx
// is done; when hold is set, it blocks on hold and ignores ctx.
type fakeBackend struct {
	mu    sync.Mutex
	reqs  []llm.CompletionRequest
	reply string
	err   error
	wait  bool
	hold  chan struct{}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeBackend) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.hold != nil {
		<-f.hold
	}
	if f.wait {
		<-ctx.Done()
		return nil, &llm.BackendError{Kind: llm.KindCancelled, Backend: "fake", Message: "request cancelled", Err: ctx.Err()}
	}
	if f.err != nil {
		return nil, f.err
	}
	reply := f.reply
	if reply == "" {
		reply = "ok: " + req.Model
	}
	return &llm.CompletionResponse{Content: reply, Model: req.Model}, nil
}

func (f *fakeBackend) calls() []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.CompletionRequest(nil), f.reqs...)
}

type fakeLister struct {
	list []registry.ProjectSummary
	err  error
}

func (f *fakeLister) ListRecent(ctx context.Context, limit int) ([]registry.ProjectSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.list) {
		return f.list[:limit], nil
	}
	return f.list, nil
}

func newTestRouter(t *testing.T, b llm.Backend, projects ProjectLister) *Router {
	t.Helper()
	r, err := New(Config{
		Backend: b,
		Handlers: []Handler{
			NewCodeHandler(b, CodeModels{}, nil),
			NewSystemHandler(SystemConfig{Profile: SystemProfile{Host: "ws1", GPU: "RTX 4070 TI", VRAM: "12GB", RAM: "32GB"}}),
			NewProjectHandler(projects, 0, nil),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRouteKeywordDispatch(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRouter(t, b, &fakeLister{})

	tests := []struct {
		task    string
		handler string
		matched bool
	}{
		{"Write a Python function to sort a list", "code", true},
		{"DEBUG my program", "code", true},
		{"show me GPU usage", "system", true},
		{"how is performance today", "system", true},
		{"list recent projects", "project", true},
		{"what templates are there", "project", true},
		{"tell me a joke", "general", false},
		// Overlap: code is registered before system.
		{"write code to check system status", "code", true},
	}

	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			out := r.Route(context.Background(), Task{Text: tt.task})
			if out.Handler != tt.handler {
				t.Errorf("Route(%q).Handler = %q, want %q", tt.task, out.Handler, tt.handler)
			}
			if out.Matched != tt.matched {
				t.Errorf("Route(%q).Matched = %v, want %v", tt.task, out.Matched, tt.matched)
			}
			if out.Failed() {
				t.Errorf("Route(%q) failed: %s", tt.task, out.Text)
			}
			if len(out.TaskID) != 8 {
				t.Errorf("TaskID = %q, want 8 chars", out.TaskID)
			}
		})
	}
}

func TestRouteEmptyTaskFallsBack(t *testing.T) {
	b := &fakeBackend{reply: "hello"}
	r := newTestRouter(t, b, nil)

	out := r.Route(context.Background(), Task{})
	if out.Handler != "general" || out.Matched {
		t.Fatalf("empty task went to %q (matched=%v), want fallback", out.Handler, out.Matched)
	}
	if out.Text != "hello" {
		t.Errorf("Text = %q, want %q", out.Text, "hello")
	}

	calls := b.calls()
	if len(calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(calls))
	}
	if calls[0].Model != DefaultModel || calls[0].Prompt != "" {
		t.Errorf("fallback request = %+v, want model %q and empty prompt", calls[0], DefaultModel)
	}
	if calls[0].Deterministic {
		t.Error("fallback request should not be deterministic")
	}
}

func TestSystemTasksNeverCallBackend(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRouter(t, b, nil)

	tests := []struct {
		task   string
		header string
	}{
		{"gpu info", HeaderGPU},
		{"system status", HeaderStatus},
		{"monitor performance", HeaderPerformance},
		{"hardware specs", HeaderOverview},
	}
	for _, tt := range tests {
		start := time.Now()
		out := r.Route(context.Background(), Task{Text: tt.task})
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("Route(%q) took %v", tt.task, elapsed)
		}
		if !strings.HasPrefix(out.Text, tt.header) {
			t.Errorf("Route(%q) = %q, want header %q", tt.task, out.Text, tt.header)
		}
	}
	if n := len(b.calls()); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}

func TestSystemReportUsesCachedLiveness(t *testing.T) {
	checked := time.Date(2026, 3, 1, 14, 2, 0, 0, time.UTC)
	h := NewSystemHandler(SystemConfig{
		Profile:  SystemProfile{Host: "ws1", GPU: "RTX 4070 TI", VRAM: "12GB"},
		Liveness: func() llm.Liveness { return llm.Liveness{Backend: "ollama", Available: true, CheckedAt: checked, Checks: 3} },
	})

	text, err := h.Execute(context.Background(), Task{Text: "gpu"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"RTX 4070 TI", "12GB", "ollama reachable"} {
		if !strings.Contains(text, want) {
			t.Errorf("GPU report missing %q:\n%s", want, text)
		}
	}

	h = NewSystemHandler(SystemConfig{Liveness: func() llm.Liveness { return llm.Liveness{Backend: "ollama"} }})
	text, _ = h.Execute(context.Background(), Task{Text: "status"})
	if !strings.Contains(text, "ollama not checked yet") {
		t.Errorf("status report before first probe:\n%s", text)
	}
}

func TestRouteBackendUnavailable(t *testing.T) {
	b := &fakeBackend{err: &llm.BackendError{
		Kind:       llm.KindUnavailable,
		Backend:    "ollama",
		BaseURL:    "http://localhost:11434",
		StatusCode: 502,
		Message:    "bad gateway",
	}}
	r := newTestRouter(t, b, nil)

	out := r.Route(context.Background(), Task{Text: "write a function"})
	if out.Code != CodeBackendUnavailable {
		t.Fatalf("Code = %q, want %q", out.Code, CodeBackendUnavailable)
	}
	if !strings.HasPrefix(out.Text, ErrorPrefix) {
		t.Errorf("Text = %q, want prefix %q", out.Text, ErrorPrefix)
	}
	for _, want := range []string{"check the backend service", "http://localhost:11434"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("diagnostic missing %q: %q", want, out.Text)
		}
	}
	if !errors.Is(out.Err, llm.ErrBackendUnavailable) {
		t.Errorf("Err = %v, want ErrBackendUnavailable", out.Err)
	}
}

func TestRouteErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"malformed", &llm.BackendError{Kind: llm.KindMalformed, Message: "missing response field"}, CodeMalformedResponse},
		{"plain error", errors.New("boom"), CodeInternal},
		{"deadline without caller cancel", fmt.Errorf("call: %w", context.DeadlineExceeded), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeBackend{err: tt.err}, nil)
			out := r.Route(context.Background(), Task{Text: "anything"})
			if out.Code != tt.want {
				t.Errorf("Code = %q, want %q (text %q)", out.Code, tt.want, out.Text)
			}
			if !strings.HasPrefix(out.Text, ErrorPrefix) {
				t.Errorf("Text = %q, want diagnostic", out.Text)
			}
		})
	}
}

func TestRouteCancellation(t *testing.T) {
	t.Run("backend honours context", func(t *testing.T) {
		r := newTestRouter(t, &fakeBackend{wait: true}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		out := r.Route(ctx, Task{Text: "explain monads"})
		if out.Code != CodeCancelled {
			t.Fatalf("Code = %q, want %q", out.Code, CodeCancelled)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Route returned after %v", elapsed)
		}
	})

	t.Run("backend ignores context", func(t *testing.T) {
		hold := make(chan struct{})
		b := &fakeBackend{hold: hold}
		r := newTestRouter(t, b, nil)
		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		out := r.Route(ctx, Task{Text: "explain monads"})
		close(hold)
		if out.Code != CodeCancelled {
			t.Fatalf("Code = %q, want %q", out.Code, CodeCancelled)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Route returned after %v", elapsed)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		b := &fakeBackend{}
		r := newTestRouter(t, b, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out := r.Route(ctx, Task{Text: "write code"})
		if out.Code != CodeCancelled {
			t.Fatalf("Code = %q, want %q", out.Code, CodeCancelled)
		}
		if n := len(b.calls()); n != 0 {
			t.Errorf("backend calls = %d, want 0", n)
		}
	})
}

func TestRoutePanicRecovered(t *testing.T) {
	r, err := New(Config{Backend: &fakeBackend{}, Handlers: []Handler{panicHandler{}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := r.Route(context.Background(), Task{Text: "explode"})
	if out.Code != CodeInternal {
		t.Fatalf("Code = %q, want %q", out.Code, CodeInternal)
	}
	if !strings.Contains(out.Text, "panicked") {
		t.Errorf("Text = %q", out.Text)
	}
}

type panicHandler struct{}

func (panicHandler) Name() string        { return "panic" }
func (panicHandler) Kind() Kind          { return KindGeneric }
func (panicHandler) Description() string { return "" }
func (panicHandler) Keywords() Keywords  { return NewKeywords("explode") }
func (panicHandler) Execute(context.Context, Task) (string, error) {
	panic("kaboom")
}

func TestCodeHandlerPrompts(t *testing.T) {
	t.Run("debug", func(t *testing.T) {
		b := &fakeBackend{}
		r := newTestRouter(t, b, nil)
		r.Route(context.Background(), Task{
			Text:    "debug this",
			Context: map[string]string{"error": "IndexError: list index out of range", "code": "xs[10]"},
		})
		calls := b.calls()
		if len(calls) != 1 {
			t.Fatalf("backend calls = %d, want 1", len(calls))
		}
		req := calls[0]
		for _, want := range []string{"IndexError: list index out of range", "xs[10]", "Explain what's wrong and provide a fixed version."} {
			if !strings.Contains(req.Prompt, want) {
				t.Errorf("debug prompt missing %q:\n%s", want, req.Prompt)
			}
		}
		if req.Model != "codellama:7b" || !req.Deterministic {
			t.Errorf("debug request = model %q deterministic %v", req.Model, req.Deterministic)
		}
	})

	t.Run("review", func(t *testing.T) {
		b := &fakeBackend{}
		r := newTestRouter(t, b, nil)
		r.Route(context.Background(), Task{Text: "review please", Context: map[string]string{"code": "func f() {}"}})
		req := b.calls()[0]
		if req.Model != "deepseek-coder:6.7b" || !req.Deterministic {
			t.Errorf("review request = model %q deterministic %v", req.Model, req.Deterministic)
		}
		for _, want := range []string{"Security vulnerabilities", "func f() {}"} {
			if !strings.Contains(req.Prompt, want) {
				t.Errorf("review prompt missing %q:\n%s", want, req.Prompt)
			}
		}
	})

	t.Run("missing context keys are empty", func(t *testing.T) {
		b := &fakeBackend{}
		r := newTestRouter(t, b, nil)
		r.Route(context.Background(), Task{Text: "debug my flaky_marker"})
		r.Route(context.Background(), Task{Text: "review my flaky_marker"})
		calls := b.calls()
		if len(calls) != 2 {
			t.Fatalf("backend calls = %d, want 2", len(calls))
		}
		debug, review := calls[0].Prompt, calls[1].Prompt
		if !strings.Contains(debug, "Error: \n") || !strings.Contains(debug, "Code: \n") {
			t.Errorf("debug prompt should have empty error and code:\n%s", debug)
		}
		if !strings.Contains(review, "\nCode:\n\n\nProvide") {
			t.Errorf("review prompt should have empty code:\n%s", review)
		}
		for _, p := range []string{debug, review} {
			if strings.Contains(p, "flaky_marker") {
				t.Errorf("task text leaked into prompt:\n%s", p)
			}
		}
	})

	t.Run("language model", func(t *testing.T) {
		b := &fakeBackend{}
		r := newTestRouter(t, b, nil)
		r.Route(context.Background(), Task{Text: "write a class", Context: map[string]string{"language": "CSharp"}})
		r.Route(context.Background(), Task{Text: "write a class", Context: map[string]string{"language": "rust"}})
		calls := b.calls()
		if calls[0].Model != "deepseek-coder:6.7b" {
			t.Errorf("csharp model = %q", calls[0].Model)
		}
		if calls[1].Model != "codellama:7b" {
			t.Errorf("unknown language model = %q", calls[1].Model)
		}
		if calls[0].Prompt != "write a class" || calls[0].Deterministic {
			t.Errorf("generic code request = %+v", calls[0])
		}
	})
}

func TestProjectHandler(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{list: []registry.ProjectSummary{
		{Name: "scraper-one", Type: registry.TypePython, LastOpenedAt: now.Add(-2 * time.Hour)},
		{Name: "shop", Type: registry.TypeWebApp, LastOpenedAt: now.Add(-72 * time.Hour)},
	}}
	h := NewProjectHandler(lister, 5, nil)
	h.now = func() time.Time { return now }

	text, err := h.Execute(context.Background(), Task{Text: "list recent projects"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"1. scraper-one (python) opened 2h ago", "2. shop (webapp) opened 3 days ago"} {
		if !strings.Contains(text, want) {
			t.Errorf("recent list missing %q:\n%s", want, text)
		}
	}

	text, _ = h.Execute(context.Background(), Task{Text: "new project please"})
	for _, tmpl := range registry.Templates(true) {
		if !strings.Contains(text, tmpl.ID) {
			t.Errorf("template guide missing %q", tmpl.ID)
		}
	}

	for _, tc := range []struct {
		task string
		want string
	}{
		{"list templates", "1. scraper-one (python)"},
		{"list my projects", "1. scraper-one (python)"},
		{"show a project template", "Projects: ask to list recent projects"},
		{"project", "Projects: ask to list recent projects"},
	} {
		text, err := h.Execute(context.Background(), Task{Text: tc.task})
		if err != nil {
			t.Fatalf("Execute(%q): %v", tc.task, err)
		}
		if !strings.Contains(text, tc.want) {
			t.Errorf("Execute(%q) = %q, want %q", tc.task, text, tc.want)
		}
	}

	text, _ = NewProjectHandler(nil, 0, nil).Execute(context.Background(), Task{Text: "recent"})
	if text != "Project registry is not configured." {
		t.Errorf("nil registry text = %q", text)
	}

	diskGone := errors.New("disk gone")
	_, err = NewProjectHandler(&fakeLister{err: diskGone}, 0, nil).Execute(context.Background(), Task{Text: "recent"})
	if err != diskGone {
		t.Errorf("lister error = %v, want it returned unchanged", err)
	}
}

func TestRouteConcurrent(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRouter(t, b, nil)
	tasks := []string{"write code", "gpu", "list projects", "hello"}

	var g errgroup.Group
	for i := 0; i < 64; i++ {
		task := tasks[i%len(tasks)]
		g.Go(func() error {
			out := r.Route(context.Background(), Task{Text: task})
			if out.Failed() {
				return fmt.Errorf("%q failed: %s", task, out.Text)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := len(b.calls()); n != 32 {
		t.Errorf("backend calls = %d, want 32", n)
	}
}

func TestNewValidation(t *testing.T) {
	b := &fakeBackend{}
	if _, err := New(Config{}); err == nil {
		t.Error("New without backend should fail")
	}
	code := NewCodeHandler(b, CodeModels{}, nil)
	if _, err := New(Config{Backend: b, Handlers: []Handler{code, code}}); err == nil {
		t.Error("New with duplicate handlers should fail")
	}

	r := newTestRouter(t, b, nil)
	infos := r.Handlers()
	if len(infos) != 3 || infos[0].Name != "code" || infos[1].Name != "system" || infos[2].Name != "project" {
		t.Errorf("Handlers() = %+v", infos)
	}
}

func TestKeywords(t *testing.T) {
	kw := NewKeywords(" Code ", "code", "", "GPU")
	if len(kw) != 2 {
		t.Fatalf("NewKeywords = %v", kw)
	}
	if m, ok := kw.Match("Fix my CODE"); !ok || m != "code" {
		t.Errorf("Match = %q, %v", m, ok)
	}
	if _, ok := kw.Match(""); ok {
		t.Error("empty text matched")
	}
	if _, ok := DefaultCodeKeywords.Match("prefix"); !ok {
		t.Error("substring containment should match 'fix' in 'prefix'")
	}
}

func TestRouteText(t *testing.T) {
	r := newTestRouter(t, &fakeBackend{reply: "42"}, nil)
	if got := r.RouteText(context.Background(), "meaning of life", nil); got != "42" {
		t.Errorf("RouteText = %q", got)
	}
}

func TestErrSummaryCutsOnRuneBoundary(t *testing.T) {
	long := errors.New(strings.Repeat("a", 199) + "日本語\nsecond line")
	got := errSummary(long)
	if got != strings.Repeat("a", 199)+"..." {
		t.Errorf("errSummary = %q", got)
	}
	if got := errSummary(errors.New("first\nsecond")); got != "first" {
		t.Errorf("errSummary multi-line = %q", got)
	}
}
