package content

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFixedTime(t *testing.T, stamp time.Time) {
	t.Helper()
	orig := currentTime
	currentTime = func() time.Time { return stamp }
	t.Cleanup(func() { currentTime = orig })
}

func TestCreate_WritesBackupFileAndIndexRow(t *testing.T) {
	root := t.TempDir()
	withFixedTime(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	s := New(root)
	id, err := s.Create("pkg/mod.py", []byte("old content"), "edit", nil, "initial backup")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	backupPath := filepath.Join(root, DirName, backupFileName("pkg/mod.py", id))
	content, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "old content", string(content))

	versions, err := s.ListVersions("pkg/mod.py")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, id, versions[0].ID)
	assert.Equal(t, "edit", versions[0].Command)
	assert.Equal(t, "initial backup", versions[0].Comment)
}

func TestBackupFileName_NeverCollides(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()
	a := backupFileName("pkg/a/mod.py", idA)
	b := backupFileName("pkg_a_mod.py", idB)
	assert.NotEqual(t, a, b)
}

func TestListVersions_NewestFirst(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	withFixedTime(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := s.Create("a.py", []byte("v1"), "edit", nil, "")
	require.NoError(t, err)

	withFixedTime(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	second, err := s.Create("a.py", []byte("v2"), "edit", nil, "")
	require.NoError(t, err)

	versions, err := s.ListVersions("a.py")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second, versions[0].ID)
}

func TestListPaths_ReturnsDistinctPathsWithLatest(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	withFixedTime(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := s.Create("a.py", []byte("a1"), "edit", nil, "")
	require.NoError(t, err)
	_, err = s.Create("b.py", []byte("b1"), "edit", nil, "")
	require.NoError(t, err)

	withFixedTime(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	latestA, err := s.Create("a.py", []byte("a2"), "edit", nil, "")
	require.NoError(t, err)

	paths, err := s.ListPaths()
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	for _, p := range paths {
		if p.Path == "a.py" {
			assert.Equal(t, latestA, p.Latest.ID)
		}
	}
}

func TestRestore_NewestWhenIDOmitted(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	withFixedTime(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := s.Create("a.py", []byte("v1"), "edit", nil, "")
	require.NoError(t, err)
	withFixedTime(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err = s.Create("a.py", []byte("v2"), "edit", nil, "")
	require.NoError(t, err)

	_, err = s.Restore("a.py", uuid.Nil)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
}

func TestRestore_SpecificID(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	withFixedTime(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	first, err := s.Create("a.py", []byte("v1"), "edit", nil, "")
	require.NoError(t, err)
	withFixedTime(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err = s.Create("a.py", []byte("v2"), "edit", nil, "")
	require.NoError(t, err)

	_, err = s.Restore("a.py", first)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
}

func TestRestore_NoBackupsErrors(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	_, err := s.Restore("missing.py", uuid.Nil)
	require.ErrorIs(t, err, ErrNoBackup)
}

func TestDeleteOne_RemovesFileAndIndexRow(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	id, err := s.Create("a.py", []byte("v1"), "edit", nil, "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteOne("a.py", id))

	versions, err := s.ListVersions("a.py")
	require.NoError(t, err)
	assert.Empty(t, versions)

	_, statErr := os.Stat(filepath.Join(root, DirName, backupFileName("a.py", id)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestClearAll_RemovesEverything(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	_, err := s.Create("a.py", []byte("v1"), "edit", nil, "")
	require.NoError(t, err)
	_, err = s.Create("b.py", []byte("v1"), "edit", nil, "")
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())

	paths, err := s.ListPaths()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestParseIndexLine_TolerantOfMalformedRows(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, os.MkdirAll(s.dir(), 0o755))
	require.NoError(t, os.WriteFile(s.indexPath(), []byte("# header\nnot-enough-fields\n"), 0o644))

	records, err := s.readIndex()
	require.NoError(t, err)
	assert.Empty(t, records)
}
