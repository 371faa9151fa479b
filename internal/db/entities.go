package db

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertClass inserts a class row, returning its id.
func InsertClass(ctx context.Context, tx *sql.Tx, c Class) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO classes (file_id, name, line, docstring, bases)
		VALUES (?, ?, ?, ?, ?)
	`, c.FileID, c.Name, c.Line, c.Docstring, c.Bases)
	if err != nil {
		return 0, fmt.Errorf("insert class %s: %w", c.Name, err)
	}
	return res.LastInsertId()
}

// InsertMethod inserts a method row bound to a class, returning its id.
func InsertMethod(ctx context.Context, tx *sql.Tx, m Method) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO methods (class_id, name, line, args, docstring, is_abstract, is_stub)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ClassID, m.Name, m.Line, m.Args, m.Docstring, boolToInt(m.IsAbstract), boolToInt(m.IsStub))
	if err != nil {
		return 0, fmt.Errorf("insert method %s: %w", m.Name, err)
	}
	return res.LastInsertId()
}

// InsertFunction inserts a module-level function row, returning its id.
func InsertFunction(ctx context.Context, tx *sql.Tx, f Function) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO functions (file_id, name, line, args, docstring, is_stub)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.FileID, f.Name, f.Line, f.Args, f.Docstring, boolToInt(f.IsStub))
	if err != nil {
		return 0, fmt.Errorf("insert function %s: %w", f.Name, err)
	}
	return res.LastInsertId()
}

// InsertImport inserts one import row per imported name.
func InsertImport(ctx context.Context, tx *sql.Tx, imp Import) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO imports (file_id, name, module, kind, line)
		VALUES (?, ?, ?, ?, ?)
	`, imp.FileID, imp.Name, imp.Module, string(imp.Kind), imp.Line)
	if err != nil {
		return fmt.Errorf("insert import %s: %w", imp.Name, err)
	}
	return nil
}

// InsertUsage inserts a call/attribute/instantiation reference row.
func InsertUsage(ctx context.Context, tx *sql.Tx, u Usage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO usages (file_id, line, kind, target_kind, target_class, target_name, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.FileID, u.Line, string(u.Kind), string(u.TargetKind), u.TargetClass, u.TargetName, u.Context)
	if err != nil {
		return fmt.Errorf("insert usage for %s: %w", u.TargetName, err)
	}
	return nil
}

// ListClasses returns every class row for a file, ordered by line.
func (d *DB) ListClasses(ctx context.Context, fileID int64) ([]Class, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, file_id, name, line, docstring, bases FROM classes WHERE file_id = ? ORDER BY line
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var out []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.FileID, &c.Name, &c.Line, &c.Docstring, &c.Bases); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMethods returns every method row for a class, ordered by line.
func (d *DB) ListMethods(ctx context.Context, classID int64) ([]Method, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, class_id, name, line, args, docstring, is_abstract, is_stub
		FROM methods WHERE class_id = ? ORDER BY line
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	defer rows.Close()

	var out []Method
	for rows.Next() {
		var m Method
		var isAbstract, isStub int
		if err := rows.Scan(&m.ID, &m.ClassID, &m.Name, &m.Line, &m.Args, &m.Docstring, &isAbstract, &isStub); err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		m.IsAbstract = isAbstract != 0
		m.IsStub = isStub != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListFunctions returns every module-level function row for a file.
func (d *DB) ListFunctions(ctx context.Context, fileID int64) ([]Function, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, file_id, name, line, args, docstring, is_stub FROM functions WHERE file_id = ? ORDER BY line
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()

	var out []Function
	for rows.Next() {
		var f Function
		var isStub int
		if err := rows.Scan(&f.ID, &f.FileID, &f.Name, &f.Line, &f.Args, &f.Docstring, &isStub); err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		f.IsStub = isStub != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListUsages returns every usage row for a file.
func (d *DB) ListUsages(ctx context.Context, fileID int64) ([]Usage, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `
		SELECT id, file_id, line, kind, target_kind, target_class, target_name, context
		FROM usages WHERE file_id = ? ORDER BY line
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	defer rows.Close()

	var out []Usage
	for rows.Next() {
		var u Usage
		var kind, targetKind string
		if err := rows.Scan(&u.ID, &u.FileID, &u.Line, &kind, &targetKind, &u.TargetClass, &u.TargetName, &u.Context); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.Kind = UsageKind(kind)
		u.TargetKind = TargetKind(targetKind)
		out = append(out, u)
	}
	return out, rows.Err()
}
