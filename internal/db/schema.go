package db

import (
	"database/sql"
	"fmt"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	root_path   TEXT UNIQUE NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  REAL NOT NULL,
	updated_at  REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id    TEXT NOT NULL REFERENCES projects(id),
	path          TEXT NOT NULL,
	lines         INTEGER NOT NULL DEFAULT 0,
	last_modified REAL NOT NULL DEFAULT 0,
	deleted       INTEGER NOT NULL DEFAULT 0,
	original_path TEXT NOT NULL DEFAULT '',
	version_dir   TEXT NOT NULL DEFAULT '',
	needs_chunking INTEGER NOT NULL DEFAULT 0,
	UNIQUE(project_id, path)
);

CREATE TABLE IF NOT EXISTS ast_trees (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	project_id TEXT NOT NULL,
	tree_text  TEXT NOT NULL,
	hash       TEXT NOT NULL,
	file_mtime REAL NOT NULL,
	created_at REAL NOT NULL,
	UNIQUE(file_id, hash)
);

CREATE TABLE IF NOT EXISTS cst_trees (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id     INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	project_id  TEXT NOT NULL,
	source_text TEXT NOT NULL,
	hash        TEXT NOT NULL,
	file_mtime  REAL NOT NULL,
	created_at  REAL NOT NULL,
	UNIQUE(file_id, hash)
);

CREATE TABLE IF NOT EXISTS classes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	line       INTEGER NOT NULL,
	docstring  TEXT NOT NULL DEFAULT '',
	bases      TEXT NOT NULL DEFAULT '',
	UNIQUE(file_id, name, line)
);

CREATE TABLE IF NOT EXISTS methods (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	class_id   INTEGER NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	line       INTEGER NOT NULL,
	args       TEXT NOT NULL DEFAULT '',
	docstring  TEXT NOT NULL DEFAULT '',
	is_abstract INTEGER NOT NULL DEFAULT 0,
	is_stub     INTEGER NOT NULL DEFAULT 0,
	UNIQUE(class_id, name, line)
);

CREATE TABLE IF NOT EXISTS functions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	line       INTEGER NOT NULL,
	args       TEXT NOT NULL DEFAULT '',
	docstring  TEXT NOT NULL DEFAULT '',
	is_stub    INTEGER NOT NULL DEFAULT 0,
	UNIQUE(file_id, name, line)
);

CREATE TABLE IF NOT EXISTS imports (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	module  TEXT NOT NULL DEFAULT '',
	kind    TEXT NOT NULL,
	line    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS usages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id      INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	line         INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	target_kind  TEXT NOT NULL,
	target_class TEXT NOT NULL DEFAULT '',
	target_name  TEXT NOT NULL,
	context      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS code_chunks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_uuid      TEXT NOT NULL UNIQUE,
	file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	project_id      TEXT NOT NULL,
	kind            TEXT NOT NULL,
	text            TEXT NOT NULL,
	ordinal         INTEGER NOT NULL,
	vector_id       INTEGER,
	embedding_model TEXT,
	class_id        INTEGER,
	function_id     INTEGER,
	method_id       INTEGER,
	line            INTEGER NOT NULL,
	ast_node_kind   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_code_chunks_unvectorized
	ON code_chunks(project_id) WHERE vector_id IS NULL;

CREATE TABLE IF NOT EXISTS vector_index (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id      TEXT NOT NULL,
	entity_kind     TEXT NOT NULL,
	entity_id       INTEGER NOT NULL,
	vector_id       INTEGER NOT NULL,
	vector_dim      INTEGER NOT NULL,
	embedding_model TEXT NOT NULL,
	UNIQUE(project_id, entity_kind, entity_id)
);

`

// currentSchemaVersion is the schema revision this binary expects. Bump it
// and add a migration step below whenever schemaDDL changes in a way that
// existing databases need to catch up to.
const currentSchemaVersion = 1

func (d *DB) migrate() error {
	if _, err := d.sqlDB.Exec(schemaDDL); err != nil {
		return err
	}

	row := d.sqlDB.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	var version int
	switch err := row.Scan(&version); err {
	case sql.ErrNoRows:
		_, err := d.sqlDB.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
		return err
	case nil:
		if version > currentSchemaVersion {
			return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, currentSchemaVersion)
		}
		if version < currentSchemaVersion {
			return fmt.Errorf("database schema version %d is older than this binary requires (%d); no migration path is implemented yet", version, currentSchemaVersion)
		}
		return nil
	default:
		return err
	}
}
