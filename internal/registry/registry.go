// Package registry keeps the catalog of workstation projects.
//
// Two stores implement Registry: SQLite (default, single-user, file backed)
// and Postgres (shared). Both keep deleted projects as inactive rows so
// recency history survives; re-creating a deleted name revives the row.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrInvalidProject  = errors.New("invalid project")
)

// ProjectType is the broad kind of a project.
type ProjectType string

const (
	TypePython  ProjectType = "python"
	TypeWebApp  ProjectType = "webapp"
	TypeAPI     ProjectType = "api"
	TypeDesktop ProjectType = "desktop"
	TypeAIML    ProjectType = "ai_ml"
	TypeGame    ProjectType = "game"
	TypeMobile  ProjectType = "mobile"
)

var projectTypes = []ProjectType{TypePython, TypeWebApp, TypeAPI, TypeDesktop, TypeAIML, TypeGame, TypeMobile}

// Valid reports whether t is a known project type.
func (t ProjectType) Valid() bool {
	for _, known := range projectTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Project is a registered workstation project.
type Project struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	Type         ProjectType `json:"type"`
	Description  string      `json:"description,omitempty"`
	Technologies []string    `json:"technologies"`
	Status       string      `json:"status"`   // active, paused, completed, archived
	Priority     int         `json:"priority"` // 1-5
	CreatedAt    time.Time   `json:"created_at"`
	LastOpenedAt time.Time   `json:"last_opened_at"`
	OpenCount    int         `json:"open_count"`
	Active       bool        `json:"active"`
}

// Summary returns the listing view of the project.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{Name: p.Name, Type: p.Type, LastOpenedAt: p.LastOpenedAt}
}

// ProjectSummary is the listing view of a project.
type ProjectSummary struct {
	Name         string      `json:"name"`
	Type         ProjectType `json:"type"`
	LastOpenedAt time.Time   `json:"last_opened_at"`
}

// NewProject describes a project to create.
type NewProject struct {
	Name         string
	Type         ProjectType
	Description  string
	Template     string // template ID; fills Type and Technologies when set
	Technologies []string
}

// Registry is the project catalog.
type Registry interface {
	CreateProject(ctx context.Context, np NewProject) (*Project, error)
	// ListRecent returns up to limit active projects, most recently opened first.
	ListRecent(ctx context.Context, limit int) ([]ProjectSummary, error)
	Get(ctx context.Context, name string) (*Project, error)
	// Open records that the project was opened and returns it.
	Open(ctx context.Context, name string) (*Project, error)
	// Delete marks the project inactive.
	Delete(ctx context.Context, name string) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	root string
	now  func() time.Time
}

// WithRoot sets the directory under which project paths are recorded.
func WithRoot(dir string) Option {
	return func(o *options) { o.root = dir }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{root: "projects", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// prepare validates np and expands it into a fresh Project.
func (o options) prepare(np NewProject) (*Project, error) {
	name := strings.TrimSpace(np.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProject)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: name %q must not contain path separators", ErrInvalidProject, name)
	}

	typ := np.Type
	techs := np.Technologies
	if np.Template != "" {
		tmpl, ok := TemplateByID(np.Template)
		if !ok {
			return nil, fmt.Errorf("%w: unknown template %q", ErrInvalidProject, np.Template)
		}
		if typ == "" {
			typ = tmpl.Type
		}
		if len(techs) == 0 {
			techs = append([]string(nil), tmpl.Technologies...)
		}
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown project type %q", ErrInvalidProject, typ)
	}
	if techs == nil {
		techs = []string{}
	}

	now := o.now().UTC()
	return &Project{
		ID:           uuid.New().String(),
		Name:         name,
		Path:         filepath.Join(o.root, name),
		Type:         typ,
		Description:  np.Description,
		Technologies: techs,
		Status:       "active",
		Priority:     3,
		CreatedAt:    now,
		LastOpenedAt: now,
		Active:       true,
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}
