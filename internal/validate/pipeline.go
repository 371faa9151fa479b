// Package validate implements the four-stage validation pipeline that
// decides whether a candidate file is acceptable: parse & compile,
// docstring policy, lint, and type-check, each individually togglable
// and run against the entire candidate, not just the edited region.
package validate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/cxerr"
)

// Stages toggles each pipeline stage; default is all-on.
type Stages struct {
	Compile   bool
	Docstring bool
	Lint      bool
	TypeCheck bool
}

// DefaultStages returns all stages enabled.
func DefaultStages() Stages {
	return Stages{Compile: true, Docstring: true, Lint: true, TypeCheck: true}
}

// Pipeline validates candidate files written to a temp path on disk,
// since the linter and type checker are external tools that require a
// real file.
type Pipeline struct {
	stages        Stages
	linterCommand []string
	typeCheckCmd  []string
	parseCache    *lru.Cache[string, *cst.Tree]
}

// New returns a Pipeline. linterCommand and typeCheckerCommand are the
// argv prefixes invoked with the temp file path appended, e.g.
// {"ruff", "check"}.
func New(stages Stages, linterCommand, typeCheckerCommand []string) *Pipeline {
	cache, _ := lru.New[string, *cst.Tree](128)
	return &Pipeline{
		stages:        stages,
		linterCommand: linterCommand,
		typeCheckCmd:  typeCheckerCommand,
		parseCache:    cache,
	}
}

// Validate runs every enabled stage against tempFile (whose content
// must equal source) in order, stopping at the first failure.
func (p *Pipeline) Validate(ctx context.Context, tempFile string, source []byte) error {
	var tree *cst.Tree

	if p.stages.Compile || p.stages.Docstring {
		var err error
		tree, err = p.parse(ctx, source)
		if err != nil {
			return err
		}
	}

	if p.stages.Compile {
		if tree.HasSyntaxError() {
			return cxerr.New(cxerr.CodeCompileError, "candidate file failed to parse", nil).
				WithDiagnostics(firstSyntaxErrorDiagnostic(tree))
		}
	}

	if p.stages.Docstring {
		if err := checkDocstrings(tree); err != nil {
			return err
		}
	}

	if p.stages.Lint {
		if err := runTool(ctx, p.linterCommand, tempFile, cxerr.CodeLinterError); err != nil {
			return err
		}
	}

	if p.stages.TypeCheck {
		if err := runTool(ctx, p.typeCheckCmd, tempFile, cxerr.CodeTypeCheckError); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) parse(ctx context.Context, source []byte) (*cst.Tree, error) {
	key := cacheKey(source)
	if cached, ok := p.parseCache.Get(key); ok {
		return cached, nil
	}

	parser := cst.NewParser()
	defer parser.Close()

	tree, err := parser.Parse(ctx, source)
	if err != nil {
		return nil, cxerr.New(cxerr.CodeCompileError, "failed to parse candidate file", err)
	}

	p.parseCache.Add(key, tree)
	return tree, nil
}

func cacheKey(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

func firstSyntaxErrorDiagnostic(tree *cst.Tree) cxerr.Diagnostic {
	var found cxerr.Diagnostic
	tree.Root.Walk(func(n *cst.Node) bool {
		if n.HasError {
			found = cxerr.Diagnostic{Line: n.StartLine(), Message: fmt.Sprintf("unexpected %s", n.Type)}
			return false
		}
		return true
	})
	if found.Message == "" {
		found = cxerr.Diagnostic{Message: "syntax error"}
	}
	return found
}

// runTool invokes command with path appended as its final argument and
// translates a non-zero exit with output into a structured error under
// code.
func runTool(ctx context.Context, command []string, path string, code string) error {
	if len(command) == 0 {
		return nil
	}

	args := append(append([]string{}, command[1:]...), path)
	cmd := exec.CommandContext(ctx, command[0], args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !isExitError(err, &exitErr) {
		return cxerr.New(code, fmt.Sprintf("failed to run %s", command[0]), err)
	}

	return cxerr.New(code, fmt.Sprintf("%s reported issues", command[0]), err).
		WithDiagnostics(parseToolOutput(string(output))...)
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// parseToolOutput splits combined stdout/stderr into one diagnostic per
// non-empty line; most linters and type checkers emit one finding per
// line.
func parseToolOutput(output string) []cxerr.Diagnostic {
	var diags []cxerr.Diagnostic
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		diags = append(diags, cxerr.Diagnostic{Message: line})
	}
	return diags
}
