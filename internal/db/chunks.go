package db

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertChunk inserts a chunk row with vector-id and embedding-model
// unset, returning its id.
func InsertChunk(ctx context.Context, tx *sql.Tx, c Chunk) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO code_chunks (chunk_uuid, file_id, project_id, kind, text, ordinal, class_id, function_id, method_id, line, ast_node_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ChunkUUID, c.FileID, c.ProjectID, string(c.Kind), c.Text, c.Ordinal, c.ClassID, c.FunctionID, c.MethodID, c.Line, c.ASTNodeKind)
	if err != nil {
		return 0, fmt.Errorf("insert chunk %s: %w", c.ChunkUUID, err)
	}
	return res.LastInsertId()
}

// FilesNeedingChunking returns up to limit file rows flagged "needs
// chunking" for a project.
func (d *DB) FilesNeedingChunking(ctx context.Context, projectID string, limit int) ([]File, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, project_id, path, lines, last_modified, deleted, original_path, version_dir, needs_chunking
		FROM files WHERE project_id = ? AND needs_chunking = 1 AND deleted = 0
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query files needing chunking: %w", err)
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

// UnvectorizedChunks returns up to limit chunks for a project whose
// vector-id is still unset, using the partial index on vector_id NULL.
func (d *DB) UnvectorizedChunks(ctx context.Context, projectID string, limit int) ([]Chunk, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, chunk_uuid, file_id, project_id, kind, text, ordinal, vector_id, embedding_model, class_id, function_id, method_id, line, ast_node_kind
		FROM code_chunks WHERE project_id = ? AND vector_id IS NULL
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unvectorized chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetChunkVector updates a chunk row with its vector identifier and
// embedding model name in one statement, so that a chunk never observes
// a state with one set and the other unset.
func SetChunkVector(ctx context.Context, tx *sql.Tx, chunkID, vectorID int64, model string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE code_chunks SET vector_id = ?, embedding_model = ? WHERE id = ?
	`, vectorID, model, chunkID)
	if err != nil {
		return fmt.Errorf("set vector for chunk %d: %w", chunkID, err)
	}
	return nil
}

// InsertVectorIndexEntry inserts or replaces a vector index mapping.
func InsertVectorIndexEntry(ctx context.Context, tx *sql.Tx, e VectorIndexEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vector_index (project_id, entity_kind, entity_id, vector_id, vector_dim, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, entity_kind, entity_id) DO UPDATE SET
			vector_id = excluded.vector_id,
			vector_dim = excluded.vector_dim,
			embedding_model = excluded.embedding_model
	`, e.ProjectID, e.EntityKind, e.EntityID, e.VectorID, e.VectorDim, e.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("insert vector index entry: %w", err)
	}
	return nil
}

func scanChunkRow(rows *sql.Rows) (*Chunk, error) {
	var c Chunk
	var kind string
	if err := rows.Scan(&c.ID, &c.ChunkUUID, &c.FileID, &c.ProjectID, &kind, &c.Text, &c.Ordinal,
		&c.VectorID, &c.EmbeddingModel, &c.ClassID, &c.FunctionID, &c.MethodID, &c.Line, &c.ASTNodeKind); err != nil {
		return nil, fmt.Errorf("scan chunk row: %w", err)
	}
	c.Kind = ChunkKind(kind)
	return &c, nil
}
