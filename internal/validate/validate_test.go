package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/cxerr"
)

const validSource = `"""A module."""


class Greeter:
    """Greets people."""

    def greet(self, name):
        """Say hello."""
        return "hello " + name
`

const undocumentedSource = `"""A module."""


class Greeter:
    def greet(self, name):
        return "hello " + name
`

const brokenSyntaxSource = `def broken(:
    pass
`

const propertySource = `"""A module."""


class Widget:
    """A widget."""

    @property
    def name(self):
        return self._name
`

func writeTemp(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidate.py")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestValidate_AcceptsCleanSource(t *testing.T) {
	p := New(Stages{Compile: true, Docstring: true}, nil, nil)
	path := writeTemp(t, validSource)

	err := p.Validate(context.Background(), path, []byte(validSource))
	require.NoError(t, err)
}

func TestValidate_RejectsSyntaxError(t *testing.T) {
	p := New(Stages{Compile: true}, nil, nil)
	path := writeTemp(t, brokenSyntaxSource)

	err := p.Validate(context.Background(), path, []byte(brokenSyntaxSource))
	require.Error(t, err)

	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeCompileError, cerr.Code)
	assert.NotEmpty(t, cerr.Diagnostics)
}

func TestValidate_RejectsMissingDocstrings(t *testing.T) {
	p := New(Stages{Docstring: true}, nil, nil)
	path := writeTemp(t, undocumentedSource)

	err := p.Validate(context.Background(), path, []byte(undocumentedSource))
	require.Error(t, err)

	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeDocstringValidationError, cerr.Code)
	assert.Len(t, cerr.Diagnostics, 2) // Greeter and Greeter.greet
}

func TestValidate_ExemptsPropertyAccessorFromDocstring(t *testing.T) {
	p := New(Stages{Docstring: true}, nil, nil)
	path := writeTemp(t, propertySource)

	err := p.Validate(context.Background(), path, []byte(propertySource))
	require.NoError(t, err)
}

func TestValidate_SkipsDisabledStages(t *testing.T) {
	p := New(Stages{Compile: false, Docstring: false}, nil, nil)
	path := writeTemp(t, brokenSyntaxSource)

	err := p.Validate(context.Background(), path, []byte(brokenSyntaxSource))
	require.NoError(t, err)
}

func TestValidate_LintFailureReportsDiagnostics(t *testing.T) {
	p := New(Stages{Lint: true}, []string{"sh", "-c", "echo 'fake:1: bad thing' >&2; exit 1"}, nil)
	path := writeTemp(t, validSource)

	err := p.Validate(context.Background(), path, []byte(validSource))
	require.Error(t, err)

	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeLinterError, cerr.Code)
	assert.NotEmpty(t, cerr.Diagnostics)
}

func TestValidate_LintSuccessPasses(t *testing.T) {
	p := New(Stages{Lint: true}, []string{"true"}, nil)
	path := writeTemp(t, validSource)

	err := p.Validate(context.Background(), path, []byte(validSource))
	require.NoError(t, err)
}

func TestValidate_TypeCheckFailureReportsDiagnostics(t *testing.T) {
	p := New(Stages{TypeCheck: true}, nil, []string{"sh", "-c", "echo 'type error' >&2; exit 1"})
	path := writeTemp(t, validSource)

	err := p.Validate(context.Background(), path, []byte(validSource))
	require.Error(t, err)

	var cerr *cxerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cxerr.CodeTypeCheckError, cerr.Code)
}

func TestValidate_EmptyCommandSkipsStage(t *testing.T) {
	p := New(Stages{Lint: true, TypeCheck: true}, nil, nil)
	path := writeTemp(t, validSource)

	err := p.Validate(context.Background(), path, []byte(validSource))
	require.NoError(t, err)
}

func TestParse_CachesBySourceHash(t *testing.T) {
	p := New(Stages{Compile: true}, nil, nil)

	tree1, err := p.parse(context.Background(), []byte(validSource))
	require.NoError(t, err)
	tree2, err := p.parse(context.Background(), []byte(validSource))
	require.NoError(t, err)

	assert.Same(t, tree1, tree2)
}

func TestParse_DifferentSourceMisses(t *testing.T) {
	p := New(Stages{Compile: true}, nil, nil)

	tree1, err := p.parse(context.Background(), []byte(validSource))
	require.NoError(t, err)
	tree2, err := p.parse(context.Background(), []byte(undocumentedSource))
	require.NoError(t, err)

	assert.NotSame(t, tree1, tree2)
}

func TestDefaultStages_AllEnabled(t *testing.T) {
	s := DefaultStages()
	assert.True(t, s.Compile)
	assert.True(t, s.Docstring)
	assert.True(t, s.Lint)
	assert.True(t, s.TypeCheck)
}
