package router

import "strings"

// Keywords is a handler's vocabulary. A task is accepted when its text
// contains at least one keyword, case-insensitively. Plain substring
// containment: "fix" matches "prefix", "class" matches "classify".
type Keywords []string

// NewKeywords normalizes a vocabulary: lower-cased, trimmed, empty and
// duplicate entries dropped, order kept.
func NewKeywords(words ...string) Keywords {
	out := make(Keywords, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Match returns the first keyword contained in text, if any.
func (k Keywords) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range k {
		if kw != "" && strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// Default vocabularies. Overlaps (for example "create") are resolved by
// registration order, not by scoring.
var (
	DefaultCodeKeywords = NewKeywords(
		"code", "function", "class", "debug", "review", "optimize", "write", "create",
		"python", "javascript", "programming", "algorithm", "fix",
	)
	DefaultSystemKeywords = NewKeywords(
		"system", "monitor", "status", "performance", "gpu", "memory", "cpu", "hardware", "specs",
	)
	DefaultProjectKeywords = NewKeywords(
		"project", "template", "recent", "list", "new", "create",
	)
)

// Accepts reports whether h can take the task. It only looks at the task
// text and never has side effects.
func Accepts(task Task, h Handler) bool {
	_, ok := h.Keywords().Match(task.Text)
	return ok
}

// containsAny is used for sub-intent detection inside handlers.
func containsAny(lower string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
