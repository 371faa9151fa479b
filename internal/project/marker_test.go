package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_CreatesMarkerWithValidUUID(t *testing.T) {
	root := t.TempDir()
	info, err := Init(root)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, info.ID)
	assert.Equal(t, root, info.Root)

	content, err := os.ReadFile(filepath.Join(root, MarkerFile))
	require.NoError(t, err)
	assert.Equal(t, info.ID.String(), string(content))
}

func TestInit_RejectsExistingMarker(t *testing.T) {
	root := t.TempDir()
	_, err := Init(root)
	require.NoError(t, err)

	_, err = Init(root)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestRead_ReturnsIdentityWrittenByInit(t *testing.T) {
	root := t.TempDir()
	first, err := Init(root)
	require.NoError(t, err)

	read, err := Read(root)
	require.NoError(t, err)
	assert.Equal(t, first.ID, read.ID)
}

func TestFind_WalksUpToMarker(t *testing.T) {
	root := t.TempDir()
	info, err := Init(root)
	require.NoError(t, err)

	nested := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, info.ID, found.ID)
	assert.Equal(t, root, found.Root)
}

func TestFind_ReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(dir)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRead_RejectsMalformedMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, MarkerFile), []byte("not-a-uuid"), 0o644))

	_, err := Read(root)
	require.Error(t, err)
}
