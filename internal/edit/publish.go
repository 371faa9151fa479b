package edit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/cxerr"
	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/indexer"
)

// publish runs the commit side of a transaction: backup, DB rewrite,
// atomic file swap (all ordered so that any failure before the DB
// commit leaves the target file untouched), then an optional,
// non-fatal version-control commit.
func (e *Engine) publish(ctx context.Context, req Request, absPath string, candidate []byte, fileExisted bool, result *Result) (*Result, error) {
	relPath := req.File

	if fileExisted {
		existing, err := os.ReadFile(absPath)
		if err != nil {
			return nil, cxerr.New(cxerr.CodeBackupError, "read existing file for backup", err)
		}
		backupID, err := e.Content.Create(relPath, existing, "edit", nil, req.CommitMessage)
		if err != nil {
			return nil, cxerr.New(cxerr.CodeBackupError, "create backup before publish", err)
		}
		result.BackupID = backupID
	}

	parser := cst.NewParser()
	defer parser.Close()

	tree, err := parser.Parse(ctx, candidate)
	if err != nil {
		return nil, cxerr.New(cxerr.CodeCompileError, "reparse candidate for publish", err)
	}

	err = e.DB.Do(ctx, func(tx *sql.Tx) error {
		fileID, err := db.UpsertFile(ctx, tx, db.File{
			ProjectID:     e.ProjectID,
			Path:          absPath,
			Lines:         lineCount(candidate),
			LastModified:  nowSeconds(),
			NeedsChunking: true,
		})
		if err != nil {
			return fmt.Errorf("locate file row: %w", err)
		}
		result.FileID = fileID

		if err := db.ClearDerivedForFile(ctx, tx, fileID); err != nil {
			return err
		}

		hash := contentHash(candidate)
		mtime := nowSeconds()
		if _, err := db.InsertASTTree(ctx, tx, db.ASTTree{
			FileID: fileID, ProjectID: e.ProjectID, TreeText: tree.ASTView().Sexp(), Hash: hash, FileMtime: mtime, CreatedAt: mtime,
		}); err != nil {
			return fmt.Errorf("insert ast tree: %w", err)
		}
		if _, err := db.InsertCSTTree(ctx, tx, db.CSTTree{
			FileID: fileID, ProjectID: e.ProjectID, SourceText: string(candidate), Hash: hash, FileMtime: mtime, CreatedAt: mtime,
		}); err != nil {
			return fmt.Errorf("insert cst tree: %w", err)
		}

		if err := indexer.Index(ctx, tx, fileID, tree); err != nil {
			return err
		}

		return atomicSwap(absPath, candidate)
	})
	if err != nil {
		if cerr, ok := err.(*cxerr.Error); ok {
			return nil, cerr
		}
		return nil, cxerr.New(cxerr.CodeDatabaseError, "publish transaction failed", err)
	}

	result.Committed = true

	if e.VCS != nil && e.VCS.IsRepository(e.ProjectRoot) {
		if err := e.VCS.Commit(ctx, e.ProjectRoot, absPath, req.CommitMessage); err != nil {
			result.VCSWarning = cxerr.New(cxerr.CodeVCSCommitFailed, "version-control commit failed", err)
		}
	}

	return result, nil
}

// atomicSwap writes candidate into target such that a reader never
// observes a partial file: if target exists, it is renamed aside, the
// candidate is renamed into place, and only then is the aside removed;
// on any failure after the rename-aside, the aside is restored.
func atomicSwap(target string, candidate []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".crucible-swap-*.py")
	if err != nil {
		return cxerr.New(cxerr.CodeFileSwapError, "create swap temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(candidate); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cxerr.New(cxerr.CodeFileSwapError, "write swap temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cxerr.New(cxerr.CodeFileSwapError, "close swap temp file", err)
	}

	if _, err := os.Stat(target); os.IsNotExist(err) {
		if err := os.Rename(tmpPath, target); err != nil {
			os.Remove(tmpPath)
			return cxerr.New(cxerr.CodeFileSwapError, "rename candidate into place", err)
		}
		return nil
	}

	asidePath := target + ".crucible-aside"
	if err := os.Rename(target, asidePath); err != nil {
		os.Remove(tmpPath)
		return cxerr.New(cxerr.CodeFileSwapError, "rename target aside", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		// restore the original file before surfacing the error
		_ = os.Rename(asidePath, target)
		return cxerr.New(cxerr.CodeFileSwapError, "rename candidate into place", err)
	}

	_ = os.Remove(asidePath)
	return nil
}
