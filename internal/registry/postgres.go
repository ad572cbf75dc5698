package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry stores projects in a shared Postgres database.
type PostgresRegistry struct {
	pool *pgxpool.Pool
	opts options
}

// OpenPostgres connects to pgURL, verifies the connection and ensures the schema.
func OpenPostgres(ctx context.Context, pgURL string, opts ...Option) (*PostgresRegistry, error) {
	config, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRegistry{pool: pool, opts: buildOptions(opts)}
	if err := r.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("project registry opened", "driver", "postgres", "host", config.ConnConfig.Host)
	return r, nil
}

func (r *PostgresRegistry) init(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL UNIQUE,
			path           TEXT NOT NULL,
			type           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			technologies   TEXT[] NOT NULL DEFAULT '{}',
			status         TEXT NOT NULL DEFAULT 'active',
			priority       INTEGER NOT NULL DEFAULT 3,
			created_at     TIMESTAMPTZ NOT NULL,
			last_opened_at TIMESTAMPTZ NOT NULL,
			open_count     INTEGER NOT NULL DEFAULT 0,
			active         BOOLEAN NOT NULL DEFAULT TRUE
		)
	`)
	if err != nil {
		return fmt.Errorf("create projects table: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_projects_recent
		ON projects (active, last_opened_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("create projects index: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRegistry) CreateProject(ctx context.Context, np NewProject) (*Project, error) {
	p, err := r.opts.prepare(np)
	if err != nil {
		return nil, err
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, TRUE)
		ON CONFLICT (name) DO UPDATE SET
			id = EXCLUDED.id, path = EXCLUDED.path, type = EXCLUDED.type,
			description = EXCLUDED.description, technologies = EXCLUDED.technologies,
			status = EXCLUDED.status, priority = EXCLUDED.priority,
			created_at = EXCLUDED.created_at, last_opened_at = EXCLUDED.last_opened_at,
			open_count = 0, active = TRUE
		WHERE projects.active = FALSE
	`, p.ID, p.Name, p.Path, string(p.Type), p.Description, p.Technologies, p.Status, p.Priority,
		p.CreatedAt, p.LastOpenedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project %s: %w", p.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, p.Name)
	}

	slog.Info("project created", "name", p.Name, "type", p.Type, "id", p.ID)
	return p, nil
}

func (r *PostgresRegistry) ListRecent(ctx context.Context, limit int) ([]ProjectSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, type, last_opened_at FROM projects
		WHERE active
		ORDER BY last_opened_at DESC, name ASC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent projects: %w", err)
	}
	defer rows.Close()

	out := []ProjectSummary{}
	for rows.Next() {
		var s ProjectSummary
		var typ string
		if err := rows.Scan(&s.Name, &typ, &s.LastOpenedAt); err != nil {
			return nil, fmt.Errorf("scan project summary: %w", err)
		}
		s.Type = ProjectType(typ)
		s.LastOpenedAt = s.LastOpenedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRegistry) Get(ctx context.Context, name string) (*Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = $1 AND active`, name)

	var p Project
	var typ string
	err := row.Scan(&p.ID, &p.Name, &p.Path, &typ, &p.Description, &p.Technologies, &p.Status,
		&p.Priority, &p.CreatedAt, &p.LastOpenedAt, &p.OpenCount, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	p.Type = ProjectType(typ)
	p.CreatedAt = p.CreatedAt.UTC()
	p.LastOpenedAt = p.LastOpenedAt.UTC()
	return &p, nil
}

func (r *PostgresRegistry) Open(ctx context.Context, name string) (*Project, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET last_opened_at = $1, open_count = open_count + 1
		WHERE name = $2 AND active
	`, r.opts.now().UTC(), name)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return r.Get(ctx, name)
}

func (r *PostgresRegistry) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET active = FALSE, status = 'archived' WHERE name = $1 AND active`, name)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	slog.Info("project deleted", "name", name)
	return nil
}
