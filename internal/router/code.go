package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/nous-labs/switchboard/internal/llm"
)

// CodeModels selects the model per code sub-intent. Languages maps a
// lower-cased language name to a model; unknown languages use Code.
type CodeModels struct {
	Code      string
	Debug     string
	Review    string
	Languages map[string]string
}

// DefaultCodeModels mirrors the models pulled on a stock workstation.
func DefaultCodeModels() CodeModels {
	return CodeModels{
		Code:   "codellama:7b",
		Debug:  "codellama:7b",
		Review: "deepseek-coder:6.7b",
		Languages: map[string]string{
			"python": "codellama:7b",
			"csharp": "deepseek-coder:6.7b",
		},
	}
}

// ModelFor returns the model for a language, falling back to the code model.
func (m CodeModels) ModelFor(language string) string {
	if model, ok := m.Languages[strings.ToLower(strings.TrimSpace(language))]; ok && model != "" {
		return model
	}
	return m.Code
}

// CodeHandler serves programming requests: debugging, review and general
// code generation.
type CodeHandler struct {
	backend  llm.Backend
	models   CodeModels
	keywords Keywords
}

// NewCodeHandler creates a code handler. Empty models or keywords take the defaults.
func NewCodeHandler(backend llm.Backend, models CodeModels, keywords Keywords) *CodeHandler {
	def := DefaultCodeModels()
	if models.Code == "" {
		models.Code = def.Code
	}
	if models.Debug == "" {
		models.Debug = def.Debug
	}
	if models.Review == "" {
		models.Review = def.Review
	}
	if models.Languages == nil {
		models.Languages = def.Languages
	}
	if len(keywords) == 0 {
		keywords = DefaultCodeKeywords
	}
	return &CodeHandler{backend: backend, models: models, keywords: keywords}
}

func (h *CodeHandler) Name() string       { return "code" }
func (h *CodeHandler) Kind() Kind         { return KindCode }
func (h *CodeHandler) Keywords() Keywords { return h.keywords }
func (h *CodeHandler) Description() string {
	return "Programming help: debugging, code review and code generation"
}

// Execute picks the sub-intent from the task text. Debug and review run
// deterministically; context keys "error", "code" and "language" refine
// the prompt and model. Missing keys read as empty strings.
func (h *CodeHandler) Execute(ctx context.Context, task Task) (string, error) {
	lower := strings.ToLower(task.Text)

	var req llm.CompletionRequest
	switch {
	case strings.Contains(lower, "debug"):
		req = llm.CompletionRequest{
			Prompt:        debugPrompt(task.Value("error"), task.Value("code")),
			Model:         h.models.Debug,
			Deterministic: true,
		}
	case strings.Contains(lower, "review"):
		req = llm.CompletionRequest{
			Prompt:        reviewPrompt(task.Value("code")),
			Model:         h.models.Review,
			Deterministic: true,
		}
	default:
		model := h.models.Code
		if lang := task.Value("language"); lang != "" {
			model = h.models.ModelFor(lang)
		}
		req = llm.CompletionRequest{Prompt: task.Text, Model: model}
	}

	resp, err := h.backend.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func debugPrompt(errText, code string) string {
	return fmt.Sprintf("Debug this error:\nError: %s\n\nCode: %s\n\nExplain what's wrong and provide a fixed version.", errText, code)
}

func reviewPrompt(code string) string {
	var b strings.Builder
	b.WriteString("Review this code for:\n")
	for _, item := range []string{
		"Bugs and errors",
		"Performance issues",
		"Security vulnerabilities",
		"Best practices",
		"Suggestions for improvement",
	} {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\nCode:\n")
	b.WriteString(code)
	b.WriteString("\n\nProvide a detailed review with specific recommendations.")
	return b.String()
}
