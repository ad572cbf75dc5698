package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nous-labs/switchboard/internal/registry"
)

// ProjectLister is the read side of the project registry the handler needs.
type ProjectLister interface {
	ListRecent(ctx context.Context, limit int) ([]registry.ProjectSummary, error)
}

// ProjectHandler answers project questions: templates, recent projects and
// how to create one. It never calls the completion backend.
type ProjectHandler struct {
	projects ProjectLister
	limit    int
	keywords Keywords
	now      func() time.Time
}

// NewProjectHandler creates a project handler. projects may be nil when no
// registry is configured.
func NewProjectHandler(projects ProjectLister, limit int, keywords Keywords) *ProjectHandler {
	if limit <= 0 {
		limit = 5
	}
	if len(keywords) == 0 {
		keywords = DefaultProjectKeywords
	}
	return &ProjectHandler{projects: projects, limit: limit, keywords: keywords, now: time.Now}
}

func (h *ProjectHandler) Name() string        { return "project" }
func (h *ProjectHandler) Kind() Kind          { return KindProject }
func (h *ProjectHandler) Keywords() Keywords  { return h.keywords }
func (h *ProjectHandler) Description() string { return "Project templates, recent projects and scaffolding help" }

func (h *ProjectHandler) Execute(ctx context.Context, task Task) (string, error) {
	lower := strings.ToLower(task.Text)
	switch {
	case containsAny(lower, "create", "new"):
		return templateGuide(), nil
	case containsAny(lower, "recent", "list"):
		return h.recent(ctx)
	default:
		return "Projects: ask to list recent projects, or to create a new project from a template.", nil
	}
}

func (h *ProjectHandler) recent(ctx context.Context) (string, error) {
	if h.projects == nil {
		return "Project registry is not configured.", nil
	}
	list, err := h.projects.ListRecent(ctx, h.limit)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No projects yet. Create one with: switchboard projects create <name> --template <id>", nil
	}

	var b strings.Builder
	b.WriteString("Recent projects:")
	for i, p := range list {
		fmt.Fprintf(&b, "\n%d. %s (%s) opened %s", i+1, p.Name, p.Type, formatTimeAgo(h.now().Sub(p.LastOpenedAt)))
	}
	return b.String(), nil
}

func templateGuide() string {
	var b strings.Builder
	b.WriteString("Project templates:")
	for _, t := range registry.Templates(true) {
		fmt.Fprintf(&b, "\n- %s: %s (%s)", t.ID, t.Name, strings.Join(t.Technologies, ", "))
	}
	b.WriteString("\nCreate one with: switchboard projects create <name> --template <id>")
	return b.String()
}

func formatTimeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
