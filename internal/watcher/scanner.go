package watcher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/gitignore"
	"github.com/crucible-dev/crucible/internal/indexer"
	"github.com/crucible-dev/crucible/internal/lockregistry"
)

// Scanner runs the polling change-detection cycle for one watched root:
// acquire the root's lock, enumerate it, diff against the database's
// file rows, index new/changed files, soft-delete vanished ones, and
// release the lock.
type Scanner struct {
	DB       *db.DB
	Locks    *lockregistry.Registry
	Options  Options
	ignore   *gitignore.Matcher
	root     string
	project  string
}

// NewScanner returns a Scanner for one project root.
func NewScanner(d *db.DB, locks *lockregistry.Registry, root, projectID string, opts Options) *Scanner {
	opts = opts.WithDefaults()
	m := gitignore.New()
	for _, p := range opts.IgnorePatterns {
		m.AddPattern(p)
	}
	return &Scanner{DB: d, Locks: locks, Options: opts, ignore: m, root: root, project: projectID}
}

// Run executes scan cycles on a ticker until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				slog.Warn("watcher cycle failed", slog.String("root", s.root), slog.Any("error", err))
			}
		}
	}
}

// Rebuild reindexes every file under s.root unconditionally, ignoring
// the mtime/size comparison RunCycle uses to skip unchanged files. It
// shares RunCycle's lock/enumerate/vanished-file machinery, differing
// only in that every observed file is treated as changed.
func (s *Scanner) Rebuild(ctx context.Context) error {
	if err := s.Locks.Acquire(s.root); err != nil {
		if err == lockregistry.ErrHeld {
			slog.Debug("watcher skipping locked root", slog.String("root", s.root))
			return nil
		}
		return fmt.Errorf("acquire lock for %s: %w", s.root, err)
	}
	defer func() {
		if err := s.Locks.Release(s.root); err != nil {
			slog.Warn("watcher failed to release lock", slog.String("root", s.root), slog.Any("error", err))
		}
	}()

	observed, err := s.enumerate()
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", s.root, err)
	}

	known, err := s.DB.ListFiles(ctx, s.project)
	if err != nil {
		return fmt.Errorf("list known files: %w", err)
	}
	byPath := make(map[string]db.File, len(known))
	for _, f := range known {
		byPath[f.Path] = f
	}

	for relPath := range observed {
		absPath := filepath.Join(s.root, relPath)
		if err := s.indexFile(ctx, absPath); err != nil {
			slog.Warn("watcher failed to reindex file", slog.String("path", absPath), slog.Any("error", err))
		}
	}

	for path, f := range byPath {
		if _, stillThere := observed[relOf(s.root, path)]; !stillThere {
			if err := s.markDeleted(ctx, f); err != nil {
				slog.Warn("watcher failed to mark file deleted", slog.String("path", path), slog.Any("error", err))
			}
		}
	}

	return nil
}

// RunCycle performs exactly one scan cycle: lock, enumerate, diff,
// apply, unlock. It tolerates per-file I/O errors by logging and
// continuing; it returns an error only for cycle-level failures
// (failure to acquire the lock, or to enumerate the root at all).
func (s *Scanner) RunCycle(ctx context.Context) error {
	if err := s.Locks.Acquire(s.root); err != nil {
		if err == lockregistry.ErrHeld {
			slog.Debug("watcher skipping locked root", slog.String("root", s.root))
			return nil
		}
		return fmt.Errorf("acquire lock for %s: %w", s.root, err)
	}
	defer func() {
		if err := s.Locks.Release(s.root); err != nil {
			slog.Warn("watcher failed to release lock", slog.String("root", s.root), slog.Any("error", err))
		}
	}()

	observed, err := s.enumerate()
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", s.root, err)
	}

	known, err := s.DB.ListFiles(ctx, s.project)
	if err != nil {
		return fmt.Errorf("list known files: %w", err)
	}
	byPath := make(map[string]db.File, len(known))
	for _, f := range known {
		byPath[f.Path] = f
	}

	for relPath, snap := range observed {
		absPath := filepath.Join(s.root, relPath)
		kind := classify(byPath, absPath, snap)
		switch kind {
		case changeNew, changeModified:
			if err := s.indexFile(ctx, absPath); err != nil {
				slog.Warn("watcher failed to index file", slog.String("path", absPath), slog.Any("error", err))
			}
		case changeUnchanged:
			// nothing to do
		}
	}

	for path, f := range byPath {
		if _, stillThere := observed[relOf(s.root, path)]; !stillThere {
			if err := s.markDeleted(ctx, f); err != nil {
				slog.Warn("watcher failed to mark file deleted", slog.String("path", path), slog.Any("error", err))
			}
		}
	}

	return nil
}

// enumerate recursively walks s.root, filtering by ignore patterns and
// the extension allow-list, and returns a map of relative path to
// mtime/size snapshot.
func (s *Scanner) enumerate() (map[string]fileSnapshot, error) {
	out := make(map[string]fileSnapshot)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("watcher skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		relPath, relErr := filepath.Rel(s.root, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		if d.IsDir() {
			if s.ignore.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.ignore.Match(relPath, false) || !hasAllowedExtension(path, s.Options.Extensions) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			slog.Warn("watcher skipping unreadable file", slog.String("path", path), slog.Any("error", infoErr))
			return nil
		}
		out[relPath] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return out, err
}

func hasAllowedExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func classify(known map[string]db.File, absPath string, snap fileSnapshot) changeKind {
	prev, exists := known[absPath]
	if !exists {
		return changeNew
	}
	prevMod := time.Unix(0, int64(prev.LastModified*1e9))
	if snap.modTime.Sub(prevMod) > modTimeEpsilon || prevMod.Sub(snap.modTime) > modTimeEpsilon {
		return changeModified
	}
	return changeUnchanged
}

func relOf(root, absPath string) string {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

// indexFile reads, parses, and indexes one file inside a single DB
// transaction, flagging it for chunking.
func (s *Scanner) indexFile(ctx context.Context, absPath string) error {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", absPath, err)
	}

	parser := cst.NewParser()
	defer parser.Close()
	tree, err := parser.Parse(ctx, source)
	if err != nil {
		return fmt.Errorf("parse %s: %w", absPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", absPath, err)
	}

	return s.DB.Do(ctx, func(tx *sql.Tx) error {
		fileID, err := db.UpsertFile(ctx, tx, db.File{
			ProjectID:     s.project,
			Path:          absPath,
			Lines:         lineCount(source),
			LastModified:  float64(info.ModTime().UnixNano()) / 1e9,
			NeedsChunking: true,
		})
		if err != nil {
			return err
		}
		if err := db.ClearDerivedForFile(ctx, tx, fileID); err != nil {
			return err
		}
		hash := contentHash(source)
		mtime := float64(info.ModTime().UnixNano()) / 1e9
		if _, err := db.InsertASTTree(ctx, tx, db.ASTTree{
			FileID: fileID, ProjectID: s.project, TreeText: tree.ASTView().Sexp(), Hash: hash, FileMtime: mtime, CreatedAt: mtime,
		}); err != nil {
			return err
		}
		if _, err := db.InsertCSTTree(ctx, tx, db.CSTTree{
			FileID: fileID, ProjectID: s.project, SourceText: string(source), Hash: hash, FileMtime: mtime, CreatedAt: mtime,
		}); err != nil {
			return err
		}
		return indexer.Index(ctx, tx, fileID, tree)
	})
}

// markDeleted soft-deletes f's row; the spec allows optionally moving
// the last-known content to a version directory, which here is left
// empty since backups already retain prior content via the content
// store.
func (s *Scanner) markDeleted(ctx context.Context, f db.File) error {
	return s.DB.Do(ctx, func(tx *sql.Tx) error {
		return db.SoftDeleteFile(ctx, tx, f.ID, "")
	})
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func lineCount(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 1
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
