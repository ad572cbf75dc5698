package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	path           TEXT NOT NULL,
	type           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	technologies   TEXT NOT NULL DEFAULT '[]',
	status         TEXT NOT NULL DEFAULT 'active',
	priority       INTEGER NOT NULL DEFAULT 3,
	created_at     TEXT NOT NULL,
	last_opened_at TEXT NOT NULL,
	open_count     INTEGER NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_projects_recent ON projects(active, last_opened_at DESC);
`

const projectColumns = `id, name, path, type, description, technologies, status, priority, created_at, last_opened_at, open_count, active`

// SQLiteRegistry stores projects in a local SQLite database.
type SQLiteRegistry struct {
	db   *sql.DB
	path string
	opts options
}

// OpenSQLite opens (creating if needed) the registry database at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("registry database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping registry db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate registry db: %w", err)
	}

	r := &SQLiteRegistry{db: db, path: path, opts: buildOptions(opts)}
	slog.Info("project registry opened", "driver", "sqlite", "path", path)
	return r, nil
}

// Close closes the registry database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLiteRegistry) CreateProject(ctx context.Context, np NewProject) (*Project, error) {
	p, err := r.opts.prepare(np)
	if err != nil {
		return nil, err
	}
	techs, err := json.Marshal(p.Technologies)
	if err != nil {
		return nil, fmt.Errorf("marshal technologies: %w", err)
	}

	// Revive an inactive row with the same name; an active one is a conflict.
	res, err := r.db.ExecContext(ctx, `
INSERT INTO projects (`+projectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1)
ON CONFLICT(name) DO UPDATE SET
	id = excluded.id, path = excluded.path, type = excluded.type,
	description = excluded.description, technologies = excluded.technologies,
	status = excluded.status, priority = excluded.priority,
	created_at = excluded.created_at, last_opened_at = excluded.last_opened_at,
	open_count = 0, active = 1
WHERE projects.active = 0
`, p.ID, p.Name, p.Path, string(p.Type), p.Description, string(techs), p.Status, p.Priority,
		p.CreatedAt.Format(timeLayout), p.LastOpenedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert project %s: %w", p.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, p.Name)
	}

	slog.Info("project created", "name", p.Name, "type", p.Type, "id", p.ID)
	return p, nil
}

func (r *SQLiteRegistry) ListRecent(ctx context.Context, limit int) ([]ProjectSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, type, last_opened_at FROM projects
WHERE active = 1
ORDER BY last_opened_at DESC, name ASC
LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent projects: %w", err)
	}
	defer rows.Close()

	out := []ProjectSummary{}
	for rows.Next() {
		var s ProjectSummary
		var typ, opened string
		if err := rows.Scan(&s.Name, &typ, &opened); err != nil {
			return nil, fmt.Errorf("scan project summary: %w", err)
		}
		s.Type = ProjectType(typ)
		s.LastOpenedAt = parseTime(opened)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRegistry) Get(ctx context.Context, name string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ? AND active = 1`, name)
	p, err := scanSQLiteProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	return p, nil
}

func (r *SQLiteRegistry) Open(ctx context.Context, name string) (*Project, error) {
	now := r.opts.now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx, `
UPDATE projects SET last_opened_at = ?, open_count = open_count + 1
WHERE name = ? AND active = 1`, now, name)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return r.Get(ctx, name)
}

func (r *SQLiteRegistry) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET active = 0, status = 'archived' WHERE name = ? AND active = 1`, name)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	slog.Info("project deleted", "name", name)
	return nil
}

func scanSQLiteProject(row *sql.Row) (*Project, error) {
	var p Project
	var typ, techs, created, opened string
	var active int
	err := row.Scan(&p.ID, &p.Name, &p.Path, &typ, &p.Description, &techs, &p.Status,
		&p.Priority, &created, &opened, &p.OpenCount, &active)
	if err != nil {
		return nil, err
	}
	p.Type = ProjectType(typ)
	p.CreatedAt = parseTime(created)
	p.LastOpenedAt = parseTime(opened)
	p.Active = active == 1
	if err := json.Unmarshal([]byte(techs), &p.Technologies); err != nil {
		return nil, fmt.Errorf("parse technologies: %w", err)
	}
	return &p, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
