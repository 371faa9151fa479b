package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("db: not found")

// UpsertProject inserts or updates a project row, keyed by id. The
// identifier itself is immutable once assigned; only name and
// description may change on update.
func UpsertProject(ctx context.Context, tx *sql.Tx, p Project) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, root_path, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, p.ID, p.RootPath, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

// GetProjectByRoot returns the project row for an absolute root path.
func (d *DB) GetProjectByRoot(ctx context.Context, rootPath string) (*Project, error) {
	row := d.sqlDB.QueryRowContext(ctx, `
		SELECT id, root_path, name, description, created_at, updated_at
		FROM projects WHERE root_path = ?
	`, rootPath)
	return scanProject(row)
}

// GetProject returns the project row for an id.
func (d *DB) GetProject(ctx context.Context, id string) (*Project, error) {
	row := d.sqlDB.QueryRowContext(ctx, `
		SELECT id, root_path, name, description, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.RootPath, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// ProjectBacklog is one row of the chunk worker's ascending-backlog
// query: a project id alongside its count of files still flagged
// "needs chunking".
type ProjectBacklog struct {
	ProjectID string
	Backlog   int
}

// ProjectsWithBacklog returns every project with at least one file
// flagged "needs chunking", ordered by ascending backlog so starving
// projects get a turn.
func (d *DB) ProjectsWithBacklog(ctx context.Context) ([]ProjectBacklog, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT project_id, COUNT(*) AS backlog
		FROM files
		WHERE needs_chunking = 1 AND deleted = 0
		GROUP BY project_id
		ORDER BY backlog ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects with backlog: %w", err)
	}
	defer rows.Close()

	var out []ProjectBacklog
	for rows.Next() {
		var b ProjectBacklog
		if err := rows.Scan(&b.ProjectID, &b.Backlog); err != nil {
			return nil, fmt.Errorf("scan backlog row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
