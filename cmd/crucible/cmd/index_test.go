package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRebuildCmd_ReindexesFilesOnDisk(t *testing.T) {
	root := newTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "widget.py"), []byte(widgetV1), 0o644))

	out, err := runCLI(t, root, "index", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "index rebuilt")

	a, err := openApp(root)
	require.NoError(t, err)
	defer a.Close()

	files, err := a.DB.ListFiles(context.Background(), a.ProjectID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].NeedsChunking)

	classes, err := a.DB.ListFunctions(context.Background(), files[0].ID)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "greet", classes[0].Name)
}
