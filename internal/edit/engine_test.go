package edit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/content"
	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/cxerr"
	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/validate"
)

const initialSource = `"""A module."""


def helper():
    """Say hi."""
    return "hi"
`

type fakeVCS struct {
	isRepo    bool
	commitErr error
	commits   int
}

func (f *fakeVCS) IsRepository(root string) bool { return f.isRepo }

func (f *fakeVCS) Commit(ctx context.Context, root, absPath, message string) error {
	f.commits++
	return f.commitErr
}

func newTestEngineSeeded(t *testing.T, vcs VCS) (*Engine, string) {
	t.Helper()
	root := t.TempDir()

	dbPath := filepath.Join(root, ".crucible", "crucible.db")
	d, err := db.Open(dbPath, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Do(context.Background(), func(tx *sql.Tx) error {
		return db.UpsertProject(context.Background(), tx, db.Project{ID: "proj-1", RootPath: root})
	}))

	return &Engine{
		ProjectRoot: root,
		ProjectID:   "proj-1",
		DB:          d,
		Content:     content.New(root),
		Pipeline:    validate.New(validate.Stages{Compile: true, Docstring: true}, nil, nil),
		VCS:         vcs,
	}, root
}

func replaceSelector(name string) cst.Selector {
	return cst.Selector{Kind: cst.SelectorQualifiedName, QualifiedName: name}
}

func TestRun_CreateWritesNewFile(t *testing.T) {
	e, root := newTestEngineSeeded(t, nil)

	req := Request{
		File:  "widget.py",
		Apply: true,
		Operations: []Operation{
			{Kind: OpCreate, Fragment: initialSource},
		},
	}

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", result.BackupID.String())

	data, err := os.ReadFile(filepath.Join(root, "widget.py"))
	require.NoError(t, err)
	assert.Equal(t, initialSource, string(data))

	functions, err := e.DB.ListFunctions(context.Background(), result.FileID)
	require.NoError(t, err)
	require.Len(t, functions, 1)
	assert.Equal(t, "helper", functions[0].Name)
}

func TestRun_ReplaceExistingFunction(t *testing.T) {
	e, root := newTestEngineSeeded(t, nil)
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(initialSource), 0o644))

	req := Request{
		File:  "widget.py",
		Apply: true,
		Operations: []Operation{
			{Kind: OpReplace, Selector: replaceSelector("helper"), Fragment: "def helper():\n    \"\"\"Say hi, differently.\"\"\"\n    return \"hello\"\n"},
		},
	}

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", result.BackupID.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestRun_DryRunDoesNotWrite(t *testing.T) {
	e, root := newTestEngineSeeded(t, nil)
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(initialSource), 0o644))

	req := Request{
		File:  "widget.py",
		Apply: false,
		Operations: []Operation{
			{Kind: OpReplace, Selector: replaceSelector("helper"), Fragment: "def helper():\n    \"\"\"Changed.\"\"\"\n    return 1\n"},
		},
	}

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Committed)
	assert.Contains(t, string(result.Candidate), "Changed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, initialSource, string(data))
}

func TestRun_PathEscapingRootFails(t *testing.T) {
	e, _ := newTestEngineSeeded(t, nil)

	_, err := e.Run(context.Background(), Request{
		File:  "../outside.py",
		Apply: true,
		Operations: []Operation{
			{Kind: OpCreate, Fragment: initialSource},
		},
	})
	require.Error(t, err)
	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeInvalidPath, cerr.Code)
}

func TestRun_MissingCommitMessageUnderVCSFails(t *testing.T) {
	e, _ := newTestEngineSeeded(t, &fakeVCS{isRepo: true})

	_, err := e.Run(context.Background(), Request{
		File:  "widget.py",
		Apply: true,
		Operations: []Operation{
			{Kind: OpCreate, Fragment: initialSource},
		},
	})
	require.Error(t, err)
	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeCommitMessageRequired, cerr.Code)
}

func TestRun_VCSCommitInvokedWhenMessageProvided(t *testing.T) {
	vcs := &fakeVCS{isRepo: true}
	e, _ := newTestEngineSeeded(t, vcs)

	result, err := e.Run(context.Background(), Request{
		File:          "widget.py",
		Apply:         true,
		CommitMessage: "add helper",
		Operations: []Operation{
			{Kind: OpCreate, Fragment: initialSource},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, result.VCSWarning)
	assert.Equal(t, 1, vcs.commits)
}

func TestRun_SelectorNotFoundFails(t *testing.T) {
	e, root := newTestEngineSeeded(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "widget.py"), []byte(initialSource), 0o644))

	_, err := e.Run(context.Background(), Request{
		File:  "widget.py",
		Apply: true,
		Operations: []Operation{
			{Kind: OpReplace, Selector: replaceSelector("nonexistent"), Fragment: "x = 1\n"},
		},
	})
	require.Error(t, err)
	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeSelectorNotFound, cerr.Code)
}

func TestRun_ValidationFailureLeavesFileUntouched(t *testing.T) {
	e, root := newTestEngineSeeded(t, nil)
	path := filepath.Join(root, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(initialSource), 0o644))

	_, err := e.Run(context.Background(), Request{
		File:  "widget.py",
		Apply: true,
		Operations: []Operation{
			{Kind: OpReplace, Selector: replaceSelector("helper"), Fragment: "def helper(:\n    pass\n"},
		},
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, initialSource, string(data))
}
