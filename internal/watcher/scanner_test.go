package watcher

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/lockregistry"
)

const widgetSource = `"""A module."""


def helper():
    """Say hi."""
    return "hi"
`

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "watch.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func seedProject(t *testing.T, d *db.DB, root string) {
	t.Helper()
	require.NoError(t, d.Do(context.Background(), func(tx *sql.Tx) error {
		return db.UpsertProject(context.Background(), tx, db.Project{ID: "proj-1", RootPath: root})
	}))
}

func newTestScanner(t *testing.T, d *db.DB, root string) *Scanner {
	t.Helper()
	locks, err := lockregistry.New("watcher-test")
	require.NoError(t, err)
	return NewScanner(d, locks, root, "proj-1", Options{})
}

func TestRunCycle_IndexesNewFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "widget.py"), []byte(widgetSource), 0o644))

	d := openTestDB(t)
	seedProject(t, d, root)
	s := newTestScanner(t, d, root)

	require.NoError(t, s.RunCycle(context.Background()))

	files, err := d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].NeedsChunking)

	functions, err := d.ListFunctions(context.Background(), files[0].ID)
	require.NoError(t, err)
	require.Len(t, functions, 1)
	assert.Equal(t, "helper", functions[0].Name)
}

func TestRunCycle_IgnoresUnchangedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(widgetSource), 0o644))

	d := openTestDB(t)
	seedProject(t, d, root)
	s := newTestScanner(t, d, root)

	require.NoError(t, s.RunCycle(context.Background()))
	files, err := d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	firstModified := files[0].LastModified

	require.NoError(t, s.RunCycle(context.Background()))
	files, err = d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, firstModified, files[0].LastModified)
}

func TestRunCycle_ReindexesModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(widgetSource), 0o644))

	d := openTestDB(t)
	seedProject(t, d, root)
	s := newTestScanner(t, d, root)
	require.NoError(t, s.RunCycle(context.Background()))

	past := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
	require.NoError(t, d.Do(context.Background(), func(tx *sql.Tx) error {
		_, err := db.UpsertFile(context.Background(), tx, db.File{
			ProjectID: "proj-1", Path: path, Lines: 1, LastModified: float64(past.UnixNano()) / 1e9,
		})
		return err
	}))

	future := time.Now().Add(1 * time.Hour)
	require.NoError(t, os.WriteFile(path, []byte(widgetSource+"\n\ndef more():\n    \"\"\"More.\"\"\"\n    return 1\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	require.NoError(t, s.RunCycle(context.Background()))

	files, err := d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	functions, err := d.ListFunctions(context.Background(), files[0].ID)
	require.NoError(t, err)
	assert.Len(t, functions, 2)
}

func TestRunCycle_SoftDeletesVanishedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(widgetSource), 0o644))

	d := openTestDB(t)
	seedProject(t, d, root)
	s := newTestScanner(t, d, root)
	require.NoError(t, s.RunCycle(context.Background()))

	require.NoError(t, os.Remove(path))
	require.NoError(t, s.RunCycle(context.Background()))

	files, err := d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunCycle_SkipsIgnoredExtension(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o644))

	d := openTestDB(t)
	seedProject(t, d, root)
	s := newTestScanner(t, d, root)
	require.NoError(t, s.RunCycle(context.Background()))

	files, err := d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunCycle_SkipsLockedRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "widget.py"), []byte(widgetSource), 0o644))

	d := openTestDB(t)
	seedProject(t, d, root)
	locks, err := lockregistry.New("other-worker")
	require.NoError(t, err)
	require.NoError(t, locks.Acquire(root))
	t.Cleanup(func() { _ = locks.Release(root) })

	s := newTestScanner(t, d, root)
	require.NoError(t, s.RunCycle(context.Background()))

	files, err := d.ListFiles(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Empty(t, files)
}
