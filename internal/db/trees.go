package db

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertASTTree inserts a fresh AST snapshot row for a file. Multiple
// snapshots per file are permitted; the live snapshot is the newest by
// mtime.
func InsertASTTree(ctx context.Context, tx *sql.Tx, t ASTTree) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ast_trees (file_id, project_id, tree_text, hash, file_mtime, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, hash) DO UPDATE SET file_mtime = excluded.file_mtime
	`, t.FileID, t.ProjectID, t.TreeText, t.Hash, t.FileMtime, t.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert ast tree for file %d: %w", t.FileID, err)
	}
	return res.LastInsertId()
}

// InsertCSTTree inserts a fresh CST snapshot row for a file.
func InsertCSTTree(ctx context.Context, tx *sql.Tx, t CSTTree) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO cst_trees (file_id, project_id, source_text, hash, file_mtime, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, hash) DO UPDATE SET file_mtime = excluded.file_mtime
	`, t.FileID, t.ProjectID, t.SourceText, t.Hash, t.FileMtime, t.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert cst tree for file %d: %w", t.FileID, err)
	}
	return res.LastInsertId()
}

// LatestASTTree returns the newest-by-mtime AST snapshot for a file.
func (d *DB) LatestASTTree(ctx context.Context, fileID int64) (*ASTTree, error) {
	row := d.sqlDB.QueryRowContext(ctx, `
		SELECT id, file_id, project_id, tree_text, hash, file_mtime, created_at
		FROM ast_trees WHERE file_id = ? ORDER BY file_mtime DESC LIMIT 1
	`, fileID)

	var t ASTTree
	if err := row.Scan(&t.ID, &t.FileID, &t.ProjectID, &t.TreeText, &t.Hash, &t.FileMtime, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan ast tree: %w", err)
	}
	return &t, nil
}
