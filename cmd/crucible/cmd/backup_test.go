package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetV1 = "def greet():\n    return 'v1'\n"
const widgetV2 = "def greet():\n    return 'v2'\n"

func createWidget(t *testing.T, root, fragment string) {
	t.Helper()
	opPath := writeOperationFile(t, root, operationFile{
		File:  "widget.py",
		Apply: true,
		Operations: []operation{
			{Kind: "create", Fragment: fragment},
		},
	})
	_, err := runCLI(t, root, "edit", "--file", opPath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(opPath))
}

// replaceGreet replaces the greet() function with fragment, producing a
// backup of whatever widget.py contained before this call.
func replaceGreet(t *testing.T, root, fragment string) {
	t.Helper()
	opPath := writeOperationFile(t, root, operationFile{
		File:  "widget.py",
		Apply: true,
		Operations: []operation{
			{Kind: "replace", QualifiedName: "greet", Fragment: fragment},
		},
	})
	_, err := runCLI(t, root, "edit", "--file", opPath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(opPath))
}

func TestBackupCmd_ListAndVersionsAfterEdit(t *testing.T) {
	root := newTestProject(t)
	createWidget(t, root, widgetV1)
	replaceGreet(t, root, widgetV2)

	listOut, err := runCLI(t, root, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, listOut, "widget.py")

	versionsOut, err := runCLI(t, root, "backup", "versions", "widget.py")
	require.NoError(t, err)
	assert.Contains(t, versionsOut, "bytes")
}

func TestBackupCmd_Restore(t *testing.T) {
	root := newTestProject(t)
	createWidget(t, root, widgetV1)
	replaceGreet(t, root, widgetV2)

	a, err := openApp(root)
	require.NoError(t, err)
	versions, err := a.Content.ListVersions("widget.py")
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	require.NoError(t, a.Close())

	backupID := versions[0].ID.String()
	_, err = runCLI(t, root, "backup", "restore", "widget.py", "--id", backupID)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "widget.py"))
	require.NoError(t, err)
	assert.Equal(t, widgetV1, string(content))
}
