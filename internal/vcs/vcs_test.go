package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRepository_FalseForPlainDirectory(t *testing.T) {
	root := t.TempDir()
	g := New("", "")
	assert.False(t, g.IsRepository(root))
}

func TestIsRepository_TrueForInitializedRepo(t *testing.T) {
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	g := New("", "")
	assert.True(t, g.IsRepository(root))
}

func TestCommit_SkipsSilentlyWhenNotARepository(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	g := New("Crucible Bot", "bot@crucible.dev")
	err := g.Commit(context.Background(), root, path, "add widget")
	assert.NoError(t, err)
}

func TestCommit_StagesAndCommitsFile(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	g := New("Crucible Bot", "bot@crucible.dev")
	require.NoError(t, g.Commit(context.Background(), root, path, "add widget"))

	head, err := repo.Head()
	require.NoError(t, err)

	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "add widget", commit.Message)
	assert.Equal(t, "Crucible Bot", commit.Author.Name)
}

func TestCommit_SecondEditProducesSecondCommit(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	g := New("Crucible Bot", "bot@crucible.dev")
	require.NoError(t, g.Commit(context.Background(), root, path, "first"))

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))
	require.NoError(t, g.Commit(context.Background(), root, path, "second"))

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "second", commit.Message)
	assert.NotNil(t, commit.ParentHashes)
	assert.Len(t, commit.ParentHashes, 1)
}
