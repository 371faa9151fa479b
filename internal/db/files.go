package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertFile inserts or updates the file row for (project, path),
// returning the row's id. Used by the indexer and edit engine when a
// file is created or its metadata changes.
func UpsertFile(ctx context.Context, tx *sql.Tx, f File) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO files (project_id, path, lines, last_modified, deleted, original_path, version_dir, needs_chunking)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			lines = excluded.lines,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted,
			needs_chunking = excluded.needs_chunking
	`, f.ProjectID, f.Path, f.Lines, f.LastModified, boolToInt(f.Deleted), f.OriginalPath, f.VersionDir, boolToInt(f.NeedsChunking))
	if err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", f.Path, err)
	}

	// The id is read back rather than taken from LastInsertId, which an
	// upsert that takes the UPDATE path leaves at the connection's
	// previous insert.
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM files WHERE project_id = ? AND path = ?`, f.ProjectID, f.Path,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve file id for %s: %w", f.Path, err)
	}
	return id, nil
}

// GetFile returns the file row for (project, path).
func (d *DB) GetFile(ctx context.Context, projectID, path string) (*File, error) {
	row := d.sqlDB.QueryRowContext(ctx, `
		SELECT id, project_id, path, lines, last_modified, deleted, original_path, version_dir, needs_chunking
		FROM files WHERE project_id = ? AND path = ?
	`, projectID, path)
	return scanFile(row)
}

// ListFiles returns every non-deleted file row for a project.
func (d *DB) ListFiles(ctx context.Context, projectID string) ([]File, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, project_id, path, lines, last_modified, deleted, original_path, version_dir, needs_chunking
		FROM files WHERE project_id = ? AND deleted = 0
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// SoftDeleteFile marks a file row deleted, retaining its row and
// backups, without touching derived entity tables.
func SoftDeleteFile(ctx context.Context, tx *sql.Tx, fileID int64, versionDir string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE files SET deleted = 1, version_dir = ? WHERE id = ?
	`, versionDir, fileID)
	if err != nil {
		return fmt.Errorf("soft delete file %d: %w", fileID, err)
	}
	return nil
}

// HardDeleteFile permanently removes a file row; ON DELETE CASCADE
// removes its AST/CST trees, classes (and their methods), functions,
// imports, usages, and chunks.
func HardDeleteFile(ctx context.Context, tx *sql.Tx, fileID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("hard delete file %d: %w", fileID, err)
	}
	return nil
}

// SetNeedsChunking flags or clears a file's "needs chunking" state.
func SetNeedsChunking(ctx context.Context, tx *sql.Tx, fileID int64, needs bool) error {
	_, err := tx.ExecContext(ctx, `UPDATE files SET needs_chunking = ? WHERE id = ?`, boolToInt(needs), fileID)
	if err != nil {
		return fmt.Errorf("set needs_chunking for file %d: %w", fileID, err)
	}
	return nil
}

// ClearDerivedForFile deletes every derived entity row for a file (AST,
// CST, classes, methods via cascade, functions, imports, usages,
// chunks, and vector index entries referencing its chunks) ahead of a
// fresh write. It does not touch the file row itself.
func ClearDerivedForFile(ctx context.Context, tx *sql.Tx, fileID int64) error {
	stmts := []string{
		`DELETE FROM vector_index WHERE entity_kind = 'chunk' AND entity_id IN (SELECT id FROM code_chunks WHERE file_id = ?)`,
		`DELETE FROM code_chunks WHERE file_id = ?`,
		`DELETE FROM usages WHERE file_id = ?`,
		`DELETE FROM imports WHERE file_id = ?`,
		`DELETE FROM functions WHERE file_id = ?`,
		`DELETE FROM classes WHERE file_id = ?`, // cascades to methods
		`DELETE FROM ast_trees WHERE file_id = ?`,
		`DELETE FROM cst_trees WHERE file_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, fileID); err != nil {
			return fmt.Errorf("clear derived rows for file %d: %w", fileID, err)
		}
	}
	return nil
}

func scanFile(row *sql.Row) (*File, error) {
	var f File
	var deleted, needsChunking int
	err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Lines, &f.LastModified, &deleted, &f.OriginalPath, &f.VersionDir, &needsChunking)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.Deleted = deleted != 0
	f.NeedsChunking = needsChunking != 0
	return &f, nil
}

func scanFileRow(rows *sql.Rows) (*File, error) {
	var f File
	var deleted, needsChunking int
	if err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Lines, &f.LastModified, &deleted, &f.OriginalPath, &f.VersionDir, &needsChunking); err != nil {
		return nil, fmt.Errorf("scan file row: %w", err)
	}
	f.Deleted = deleted != 0
	f.NeedsChunking = needsChunking != 0
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
